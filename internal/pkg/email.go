package pkg

import (
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"` // 发件人邮箱
	Password string `yaml:"password"` // 授权码/密码
	From     string `yaml:"from"`     // 显示的发件人，可与 Username 相同
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port > 0
}

// Mailer 发送邮件
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// SMTPMailer 基于 gomail 的 Mailer
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	return SendEmail(m.cfg, to, subject, htmlBody)
}

func SendEmail(cfg SMTPConfig, to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return d.DialAndSend(m)
}

const SignupSubject = "Регистрация"

func SignupHTML(username string) string {
	return fmt.Sprintf(`<p>%s, вы успешно прошли регистрацию на сайте.</p>`, username)
}
