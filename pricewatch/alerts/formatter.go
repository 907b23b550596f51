package alerts

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Message is the formatted form of one alert. Formatting is pure: identical
// input always yields an identical message.
type Message struct {
	Subject string
	Text    string
	HTML    string
	Webhook WebhookPayload
}

// WebhookPayload is the wire format POSTed by the webhook channel.
type WebhookPayload struct {
	Text        string              `json:"text"`
	Attachments []WebhookAttachment `json:"attachments"`
}

type WebhookAttachment struct {
	Color     string         `json:"color"`
	Title     string         `json:"title"`
	TitleLink string         `json:"title_link"`
	Fields    []WebhookField `json:"fields"`
}

type WebhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Format renders an alert once for all channels.
func Format(a Alert) Message {
	var subject string
	var color string
	if a.Direction == "down" {
		subject = fmt.Sprintf("Price drop: %s now %s (%s)",
			a.ProductTitle, money(a.NewPrice, a.Currency), percent(a.PercentChange))
		color = "#00ff00"
	} else {
		subject = fmt.Sprintf("Price increase: %s now %s (%s)",
			a.ProductTitle, money(a.NewPrice, a.Currency), percent(a.PercentChange))
		color = "#ff0000"
	}

	text := fmt.Sprintf("%s\n\nOld price: %s\nNew price: %s\nChange: %s\nSeverity: %s\n\n%s",
		subject,
		money(a.OldPrice, a.Currency),
		money(a.NewPrice, a.Currency),
		percent(a.PercentChange),
		a.Severity,
		a.ProductURL,
	)

	html := fmt.Sprintf(
		`<h2>%s</h2><table>`+
			`<tr><td>Old Price</td><td>%s</td></tr>`+
			`<tr><td>New Price</td><td>%s</td></tr>`+
			`<tr><td>Change</td><td>%s</td></tr>`+
			`<tr><td>Severity</td><td>%s</td></tr>`+
			`</table><p><a href="%s">View product</a></p>`,
		subject,
		money(a.OldPrice, a.Currency),
		money(a.NewPrice, a.Currency),
		percent(a.PercentChange),
		a.Severity,
		a.ProductURL,
	)

	return Message{
		Subject: subject,
		Text:    text,
		HTML:    html,
		Webhook: WebhookPayload{
			Text: subject,
			Attachments: []WebhookAttachment{{
				Color:     color,
				Title:     a.ProductTitle,
				TitleLink: a.ProductURL,
				Fields: []WebhookField{
					{Title: "Old Price", Value: money(a.OldPrice, a.Currency), Short: true},
					{Title: "New Price", Value: money(a.NewPrice, a.Currency), Short: true},
					{Title: "Change", Value: percent(a.PercentChange), Short: true},
					{Title: "Severity", Value: a.Severity, Short: true},
				},
			}},
		},
	}
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

func money(v decimal.Decimal, currency string) string {
	if sym, ok := currencySymbols[currency]; ok {
		return sym + v.StringFixed(2)
	}
	if currency == "" {
		return "$" + v.StringFixed(2)
	}
	return currency + " " + v.StringFixed(2)
}

func percent(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}
