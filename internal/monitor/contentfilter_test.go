package monitor

import (
	"testing"

	"github.com/quantops/qubot/internal/store"
)

func TestClassifyCategories(t *testing.T) {
	f := NewContentFilter()
	tests := []struct {
		text string
		want string
	}{
		{"限时折扣，今日开户返佣最高一千元", FilterAd},
		{"guaranteed profit signals, promo code inside", FilterAd},
		{"成人视频资源每日更新", FilterAdult},
		{"点击加群领取福利，私聊机器人验证", FilterBotAdmission},
		{"free airdrop claim, connect your wallet validation", FilterSpam},
		{"美联储宣布维持利率不变，市场反应积极", ""},
		{"BTC reclaimed 100k after the CPI print", ""},
	}
	for _, tt := range tests {
		if got := f.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestSpamRegexes(t *testing.T) {
	f := NewContentFilter()
	tests := []struct {
		text string
		want bool
	}{
		{"join us at t.me/+AbCdEf123 now", true},
		{"shortlink bit.ly/3xYzAbc inside", true},
		{"leaked chat -1001234567890 posted this", true},
		{"обычный длинный русский текст который тянется достаточно долго", true},
		{"normal market commentary with a link https://example.com", false},
	}
	for _, tt := range tests {
		got, reason := f.Reject(tt.text)
		if got != tt.want {
			t.Errorf("Reject(%q) = %v (%s), want %v", tt.text, got, reason, tt.want)
		}
		if tt.want && got && reason != FilterSpam {
			t.Errorf("Reject(%q) reason = %q, want spam", tt.text, reason)
		}
	}
}

func TestClassifyChannelDominance(t *testing.T) {
	tech := repeatMsgs(10, "新的开源框架发布了，github 上已有部署文档和 docker 镜像")
	if got := ClassifyChannel(tech); got != CategoryTech {
		t.Errorf("tech sample classified as %q", got)
	}

	market := repeatMsgs(10, "沪指放量上涨，北向资金净流入")
	if got := ClassifyChannel(market); got != CategoryMarket {
		t.Errorf("market sample classified as %q", got)
	}

	// Evenly split signals lack the 1.5x dominance and keep the default.
	mixed := append(repeatMsgs(3, "github 开源代码更新"),
		repeatMsgs(3, "快讯：breaking 要闻")...)
	if got := ClassifyChannel(mixed); got != CategoryMarket {
		t.Errorf("mixed sample classified as %q, want market default", got)
	}

	if got := ClassifyChannel(nil); got != CategoryMarket {
		t.Errorf("empty sample classified as %q", got)
	}
}

func repeatMsgs(n int, text string) []store.CachedMessage {
	out := make([]store.CachedMessage, n)
	for i := range out {
		out[i] = store.CachedMessage{ChannelID: "c1", Text: text}
	}
	return out
}
