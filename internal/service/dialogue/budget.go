package dialogue

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

// perMessageOverhead approximates the role/separator tokens added per message.
const perMessageOverhead = 4

// TokenCounter counts tokens of a single message body.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the BPE encoding of an OpenAI model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding for modelName. The BPE ranks are
// fetched on first use and cached by tiktoken-go.
func NewTiktokenCounter(modelName string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer init: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Budget trims the engine input to a token limit.
type Budget struct {
	limit   int
	counter TokenCounter
}

// NewBudget returns nil when limit is not positive, which disables trimming.
func NewBudget(limit int, counter TokenCounter) *Budget {
	if limit <= 0 || counter == nil {
		return nil
	}
	return &Budget{limit: limit, counter: counter}
}

// Trim keeps the leading system utterances and the newest turns that fit.
// The final utterance is always kept, even when it alone exceeds the limit.
func (b *Budget) Trim(transcript []chat.Utterance) []chat.Utterance {
	if b == nil || len(transcript) == 0 {
		return transcript
	}

	head := 0
	for head < len(transcript) && transcript[head].Role == chat.RoleSystem {
		head++
	}

	total := 0
	for _, u := range transcript[:head] {
		total += b.cost(u)
	}

	start := len(transcript)
	for i := len(transcript) - 1; i >= head; i-- {
		tokens := b.cost(transcript[i])
		if total+tokens > b.limit && i < len(transcript)-1 {
			break
		}
		total += tokens
		start = i
	}

	if start == head {
		return transcript
	}

	out := make([]chat.Utterance, 0, head+len(transcript)-start)
	out = append(out, transcript[:head]...)
	out = append(out, transcript[start:]...)
	return out
}

func (b *Budget) cost(u chat.Utterance) int {
	return b.counter.Count(u.Text) + perMessageOverhead
}
