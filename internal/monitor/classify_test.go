package monitor

import (
	"testing"

	"github.com/quantops/qubot/internal/store"
)

func cached(texts ...string) []store.CachedMessage {
	msgs := make([]store.CachedMessage, 0, len(texts))
	for _, t := range texts {
		msgs = append(msgs, store.CachedMessage{Text: t})
	}
	return msgs
}

func TestClassifyChannel(t *testing.T) {
	cases := []struct {
		name string
		msgs []store.CachedMessage
		want string
	}{
		{
			name: "no hits stays market",
			msgs: cached("BTC 突破 65000 美元", "资金费率上升"),
			want: CategoryMarket,
		},
		{
			name: "single dominant category",
			msgs: cached("开源 代码 框架", "github docker"),
			want: CategoryTech,
		},
		{
			// tech 3 vs news 2: 3 = 1.5 * 2, not strictly above the ratio.
			name: "exactly 1.5x runner-up is no verdict",
			msgs: cached("github docker python", "breaking news"),
			want: CategoryMarket,
		},
		{
			// tech 4 vs news 2 clears the ratio.
			name: "above 1.5x runner-up is a verdict",
			msgs: cached("github docker python kubernetes", "breaking news"),
			want: CategoryTech,
		},
		{
			name: "chitchat channel classified skip",
			msgs: cached("早安 签到", "晚安 水群", "闲聊"),
			want: CategorySkip,
		},
		{
			name: "empty sample stays market",
			msgs: nil,
			want: CategoryMarket,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyChannel(tc.msgs); got != tc.want {
				t.Errorf("ClassifyChannel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyChannelSampleCap(t *testing.T) {
	msgs := make([]store.CachedMessage, 0, classifySampleCap+10)
	for i := 0; i < classifySampleCap; i++ {
		msgs = append(msgs, store.CachedMessage{Text: "行情讨论"})
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, store.CachedMessage{Text: "github docker kubernetes"})
	}
	if got := ClassifyChannel(msgs); got != CategoryMarket {
		t.Errorf("rows beyond the sample cap influenced the verdict: %q", got)
	}
}
