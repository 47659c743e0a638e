package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/BerniceZTT/dialer_end/models"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

const introTemplate = `您好 {{.Contact}}，

感谢您抽出时间了解我们的汽车美容服务。我们为{{.Company}}准备了适合{{.Category}}客户的方案，
方便时请回复此邮件或直接来电，我们会尽快与您联系。

{{.From}}
`

type introData struct {
	Contact  string
	Company  string
	Category string
	From     string
}

// EmailSender 基于SMTP的邮件能力，为线索撰写并发送介绍邮件
type EmailSender struct {
	From    string
	Subject string

	send   func(m *gomail.Message) error
	tmpl   *template.Template
	logger zerolog.Logger
}

// NewEmailSender 创建SMTP邮件发送器
func NewEmailSender(host string, port int, user, password, from string, logger zerolog.Logger) *EmailSender {
	d := gomail.NewDialer(host, port, user, password)
	return newSender(from, d.DialAndSend, logger)
}

// NewEmailSenderWith 使用自定义的gomail.Sender发送
func NewEmailSenderWith(sender gomail.Sender, from string, logger zerolog.Logger) *EmailSender {
	return newSender(from, func(msgs ...*gomail.Message) error {
		return gomail.Send(sender, msgs...)
	}, logger)
}

func newSender(from string, send func(m ...*gomail.Message) error, logger zerolog.Logger) *EmailSender {
	return &EmailSender{
		From:    from,
		Subject: "汽车美容服务介绍",
		send: func(m *gomail.Message) error {
			return send(m)
		},
		tmpl:   template.Must(template.New("intro").Parse(introTemplate)),
		logger: logger,
	}
}

// ComposeEmail 为线索发送介绍邮件，返回是否已发出
func (s *EmailSender) ComposeEmail(ctx context.Context, lead *models.Lead) (bool, error) {
	if strings.TrimSpace(lead.Email) == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	contact := lead.ContactName
	if contact == "" {
		contact = lead.Name
	}
	var body bytes.Buffer
	if err := s.tmpl.Execute(&body, introData{
		Contact:  contact,
		Company:  lead.Name,
		Category: lead.Category,
		From:     s.From,
	}); err != nil {
		return false, fmt.Errorf("渲染邮件模板失败: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", lead.Email)
	m.SetHeader("Subject", s.Subject)
	m.SetBody("text/plain", body.String())

	if err := s.send(m); err != nil {
		s.logger.Error().Err(err).Str("leadId", lead.ID.Hex()).Msg("SMTP发送邮件失败")
		return false, fmt.Errorf("SMTP发送邮件失败: %w", err)
	}
	s.logger.Info().Str("leadId", lead.ID.Hex()).Str("to", lead.Email).Msg("邮件已发送")
	return true, nil
}

// LogOnlyMessenger 未配置SMTP时使用：只记录日志，视为已在外部客户端打开撰写
type LogOnlyMessenger struct {
	Logger zerolog.Logger
}

// ComposeEmail 记录撰写请求
func (m LogOnlyMessenger) ComposeEmail(_ context.Context, lead *models.Lead) (bool, error) {
	if strings.TrimSpace(lead.Email) == "" {
		return false, nil
	}
	m.Logger.Info().Str("leadId", lead.ID.Hex()).Str("to", lead.Email).Msg("未配置SMTP，仅记录邮件撰写")
	return true, nil
}
