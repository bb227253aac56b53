package builtin

import "github.com/vvoland/vidchat/pkg/tools"

const ToolNameAskForConfirmation = "askForConfirmation"

// Decisions a client sends back for askForConfirmation. A denial is a
// regular output, not an error.
const (
	ConfirmationApproved = "Yes, confirmed."
	ConfirmationDenied   = "No, denied"
)

type AskForConfirmationArgs struct {
	Message string `json:"message" jsonschema:"The question to ask the user"`
}

// NewAskForConfirmationTool returns a tool without a handler: the turn
// pauses at input-available until the user answers.
func NewAskForConfirmationTool() tools.Tool {
	return tools.Tool{
		Name:        ToolNameAskForConfirmation,
		Description: "Ask the user for confirmation before doing something that needs their approval.",
		Parameters:  tools.MustSchemaFor[AskForConfirmationArgs](),
	}
}

// IsClientSide reports whether the user, not a server handler, settles
// calls to the named tool.
func IsClientSide(toolName string) bool {
	return toolName == ToolNameAskForConfirmation
}
