package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookup_engine/internal/model"
)

func TestSMTPConfigForEmail(t *testing.T) {
	cases := []struct {
		email   string
		host    string
		port    int
		useSSL  bool
		wantErr bool
	}{
		{email: "user@qq.com", host: "smtp.qq.com", port: 465, useSSL: true},
		{email: "user@foxmail.com", host: "smtp.qq.com", port: 465, useSSL: true},
		{email: "user@163.com", host: "smtp.163.com", port: 465, useSSL: true},
		{email: "user@126.com", host: "smtp.163.com", port: 465, useSSL: true},
		{email: "user@gmail.com", host: "smtp.gmail.com", port: 587, useSSL: false},
		{email: "user@outlook.com", host: "smtp.office365.com", port: 587, useSSL: false},
		{email: "user@hotmail.com", host: "smtp.office365.com", port: 587, useSSL: false},
		{email: "user@example.org", host: "smtp.example.org", port: 465, useSSL: true},
		{email: "no-at-sign", wantErr: true},
		{email: "user@", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.email, func(t *testing.T) {
			host, port, useSSL, err := smtpConfigForEmail(tc.email)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.port, port)
			assert.Equal(t, tc.useSSL, useSSL)
		})
	}
}

func TestValidateEmailSettings(t *testing.T) {
	assert.NoError(t, validateEmailSettings(model.EmailSettings{Email: "user@qq.com", AuthCode: "x"}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{AuthCode: "x"}), "缺少邮箱")
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "user@qq.com"}), "缺少授权码")
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "not-an-email", AuthCode: "x"}))
}

func TestBuildSummarySubject(t *testing.T) {
	s := buildSummarySubject(RunSummary{Found: 3, NotFound: 5, Exhausted: 1})
	assert.Contains(t, s, "已注册 3")
	assert.Contains(t, s, "未注册 5")

	s = buildSummarySubject(RunSummary{Halted: true, Unresolved: 7})
	assert.Contains(t, s, "中止")
	assert.Contains(t, s, "7")
}

func TestBuildSummaryBody(t *testing.T) {
	htmlBody, textBody, err := buildSummaryBody(RunSummary{
		At:         1_700_000_000_000,
		DurationMs: 90_000,
		Total:      10,
		Found:      4,
		NotFound:   5,
		Exhausted:  1,
	})
	require.NoError(t, err)
	assert.Contains(t, htmlBody, "验证运行汇总")
	assert.NotEmpty(t, textBody)
}
