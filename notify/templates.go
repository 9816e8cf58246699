package notify

import (
	"bytes"
	"html/template"
)

const layoutOpen = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 8px;">`

const button = `style="background-color: #8B5A3C; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block; font-weight: bold;"`

var adminChatTemplate = template.Must(template.New("admin_chat").Parse(layoutOpen + `
  <h2 style="color: #8B5A3C;">Nouveau message de chat reçu</h2>
  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px;">
    <h3>Informations du client:</h3>
    <p><strong>Nom:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Session ID:</strong> {{.SessionID}}</p>
  </div>
  <div style="padding: 15px; border-left: 4px solid #8B5A3C;">
    <h3>Message:</h3>
    <p style="line-height: 1.5; white-space: pre-wrap;">{{.Body}}</p>
  </div>
  <p style="text-align: center; margin: 30px 0;">
    <a href="{{.ReplyURL}}" ` + button + `>Répondre directement à cette conversation</a>
  </p>
  <p style="text-align: center;"><a href="{{.DashboardURL}}">Voir toutes les conversations</a></p>
  <p style="font-size: 12px; color: #666; text-align: center;">
    Cette notification a été envoyée automatiquement par le système de chat Equi Saddles.
  </p>
</div>
`))

var customerReplyTemplate = template.Must(template.New("customer_reply").Parse(layoutOpen + `
  <h2 style="color: #8B5A3C;">Réponse de notre équipe</h2>
  <p>Bonjour {{.Name}},</p>
  <p>Nous avons répondu à votre message sur notre chat en ligne:</p>
  <div style="background-color: #f8f9fa; padding: 15px; border-left: 4px solid #8B5A3C;">
    <p style="line-height: 1.5; font-style: italic; white-space: pre-wrap;">{{.Body}}</p>
  </div>
  <p style="text-align: center; margin: 30px 0;">
    <a href="{{.ReplyURL}}" ` + button + `>Continuer la conversation</a>
  </p>
  <p style="font-size: 14px; color: #333;">
    <strong>Equi Saddles</strong><br>
    Spécialiste en selles d'équitation<br>
    Rue du Vicinal 9, 4141 Louveigné, Belgique<br>
    Email: contact@equisaddles.com
  </p>
</div>
`))

var contactFormTemplate = template.Must(template.New("contact_form").Parse(layoutOpen + `
  <h2 style="color: #8B5A3C;">Nouveau message du formulaire de contact</h2>
  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px;">
    <p><strong>Nom:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Sujet:</strong> {{.Subject}}</p>
  </div>
  <div style="padding: 15px; border-left: 4px solid #8B5A3C;">
    <h3>Message:</h3>
    <p style="line-height: 1.5; white-space: pre-wrap;">{{.Body}}</p>
  </div>
  <p style="text-align: center; margin: 30px 0;">
    <a href="{{.ReplyURL}}" ` + button + `>Répondre à {{.Name}}</a>
  </p>
</div>
`))

type templateData struct {
	Name         string
	Email        string
	Subject      string
	SessionID    string
	Body         string
	ReplyURL     string
	DashboardURL string
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
