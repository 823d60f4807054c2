package templates

import (
	"bytes"
	"fmt"
	"html/template"
)

// Registered email templates, keyed by name. Kept small on purpose: the
// service only sends transactional mail on registration today.
var registry = map[string]*template.Template{
	"welcome": template.Must(template.New("welcome").Parse(welcomeHTML)),
}

const welcomeHTML = `
<html>
  <body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Welcome, {{.Username}}!</h2>
    <p>Your account for {{.AppName}} has been created with the email
    <strong>{{.Email}}</strong>.</p>
    <p>You can now sign in and complete your profile.</p>
    <p style="color:#888;font-size:12px;">If you did not create this account,
    please ignore this email.</p>
  </body>
</html>`

// Subject returns the subject line for a named template.
func Subject(name string) string {
	switch name {
	case "welcome":
		return "Welcome to your new account"
	default:
		return "Notification"
	}
}

// RenderHTML renders the named template with data.
func RenderHTML(name string, data map[string]any) (string, error) {
	tpl, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
