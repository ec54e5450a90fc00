package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const (
	colorInfo    = "#007AFF"
	colorWarning = "#FF3B30"
	colorSuccess = "#34C759"
)

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset='utf-8'></head>
<body style='margin: 0; padding: 0; background-color: #F2F2F7; font-family: sans-serif;'>
	<table width='100%' border='0' cellspacing='0' cellpadding='0'>
		<tr><td align='center' style='padding: 40px 20px;'>
			<table width='100%' border='0' cellspacing='0' cellpadding='0' style='max-width: 500px; background-color: #FFFFFF; border-radius: 24px; overflow: hidden;'>
				<tr><td style='height: 6px; background-color: {{.Color}};'></td></tr>
				<tr><td style='padding: 40px 30px;'>
					<div style='color: {{.Color}}; font-size: 12px; font-weight: 700; text-transform: uppercase; margin-bottom: 8px;'>CDT MONITOR</div>
					<h1 style='margin: 0 0 10px 0; font-size: 24px; color: #1C1C1E;'>{{.Title}}</h1>
					<p style='margin: 0 0 30px 0; font-size: 15px; color: #8E8E93;'>{{.Summary}}</p>
					<table width='100%' border='0' cellspacing='0' cellpadding='0' style='border-top: 1px solid #F2F2F7;'>
					{{- range .Rows}}
						<tr style='border-bottom: 1px solid #F2F2F7;'>
							<td style='padding: 12px 0; color: #8E8E93; font-size: 14px; width: 40%;'>{{.Label}}</td>
							<td style='padding: 12px 0; color: {{.Color}}; font-size: 14px; font-weight: 600; text-align: right;'>{{.Value}}</td>
						</tr>
					{{- end}}
					</table>
				</td></tr>
				<tr><td style='background-color: #FAFAFC; padding: 20px; text-align: center; color: #AEAEB2; font-size: 12px;'>&copy; {{.Year}} CDT Monitor</td></tr>
			</table>
		</td></tr>
	</table>
</body></html>`))

type emailRow struct {
	Label string
	Value string
	Color string
}

type emailData struct {
	Color   string
	Title   string
	Summary string
	Rows    []emailRow
	Year    int
}

func accentColor(kind string) string {
	switch kind {
	case "warning":
		return colorWarning
	case "success":
		return colorSuccess
	default:
		return colorInfo
	}
}

// renderEmail produces the styled HTML body for an event.
func renderEmail(e event, now time.Time) (string, error) {
	color := accentColor(e.Kind)
	data := emailData{
		Color:   color,
		Title:   e.Title,
		Summary: e.Summary,
		Year:    now.Year(),
	}
	for _, d := range e.Details {
		valColor := "#1C1C1E"
		if d.Highlight {
			valColor = color
		}
		data.Rows = append(data.Rows, emailRow{Label: d.Label, Value: d.Value, Color: valColor})
	}

	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
