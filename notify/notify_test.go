package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/autodev/apiclient"
)

func TestToaster(t *testing.T) {
	tests := []struct {
		name string
		show func(*Toaster)
		want string
	}{
		{"success", func(t *Toaster) { t.Success("保存しました", "") }, "[✓] 保存しました\n"},
		{"error", func(t *Toaster) { t.Error("失敗", "詳細") }, "[✗] 失敗: 詳細\n"},
		{"info", func(t *Toaster) { t.Info("sync", "started") }, "[i] sync: started\n"},
		{"warning", func(t *Toaster) { t.Warning("slow", "") }, "[!] slow\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.show(NewToaster(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestToaster_ErrorFrom(t *testing.T) {
	var buf bytes.Buffer
	toaster := NewToaster(&buf)

	toaster.ErrorFrom("取得失敗", apiclient.NewError("missing", apiclient.CodeNotFound, 404, nil))
	toaster.ErrorFrom("unknown", errors.New("boom"))
	toaster.ErrorFrom("ignored", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[✗] 取得失敗: 指定されたデータが見つかりません。",
		"[✗] unknown: " + apiclient.UnknownMessage,
	}, lines)
}

func TestToaster_Quiet(t *testing.T) {
	var buf bytes.Buffer
	toaster := NewToaster(&buf)
	toaster.SetQuiet(true)

	toaster.Success("done", "")
	toaster.Info("fyi", "")
	toaster.Warning("careful", "")

	assert.Equal(t, "[!] careful\n", buf.String())
}

func TestOverlay_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	o := NewOverlay(&buf)
	assert.Nil(t, o.spinner)

	o.Update("ignored while idle")
	assert.Zero(t, o.Stop())

	o.Start("要件定義を生成中")
	assert.True(t, o.Active())
	o.Update("still working")
	o.Start("restarted")
	o.Stop()
	assert.False(t, o.Active())

	assert.Equal(t, "要件定義を生成中...\nstill working...\nrestarted...\n", buf.String())
}
