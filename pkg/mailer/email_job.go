package mailer

// EmailJob is the JSON payload placed on the RabbitMQ queue for the email
// worker. Template selects a named template in pkg/mailer/templates; when
// empty, Subject/Text/HTML are sent as-is.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Template names understood by the worker.
const (
	TemplateWelcome = "welcome"
)
