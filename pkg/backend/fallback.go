package backend

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Canned knowledge about peer-to-peer lending, keyed by topic. Served
// when the live backend is unreachable so the conversation never goes
// silent.
var lendingKnowledge = map[string]string{
	"definition": "P2P lending (peer-to-peer lending) connects individual lenders directly with borrowers through online platforms, bypassing traditional banks. Lenders can earn interest on their investments while borrowers may get more favorable rates than from conventional sources.",

	"risks": "P2P lending involves several risks, including credit default risk (borrowers failing to repay), platform risk (the platform itself could fail), liquidity risk (difficulty withdrawing funds before loan maturity), and regulatory risk (changing regulations could impact returns).",

	"benefits": "P2P lending offers potentially higher returns for investors compared to traditional savings accounts, more favorable rates for borrowers, portfolio diversification, and accessibility for those who might not qualify for traditional bank loans.",

	"regulation": "In India, P2P lending platforms are regulated by the Reserve Bank of India (RBI) and must be registered as Non-Banking Financial Companies (NBFC-P2P). This regulation helps protect both lenders and borrowers by ensuring platforms operate transparently.",
}

// topicKeywords maps query keywords to knowledge topics.
var topicKeywords = map[string][]string{
	"definition": {"what is", "define", "meaning", "explain", "understand", "basics", "concept"},
	"risks":      {"risk", "danger", "safe", "safety", "concern", "problem", "default", "secure"},
	"benefits":   {"benefit", "advantage", "return", "profit", "earn", "gain", "pros"},
	"regulation": {"regulation", "regulated", "legal", "law", "rbi", "compliant", "rules"},
}

// genericFallbacks are used when no lending topic matches.
var genericFallbacks = []string{
	"I'm having trouble connecting to my knowledge base right now. Could you please try again in a moment?",
	"It seems I'm experiencing some technical difficulties. Let me get back to you on that.",
	"I apologize for the inconvenience, but I'm unable to process that request right now. Please try again.",
	"I'm sorry, but I can't access my full capabilities at the moment. Could we try a different question?",
	"I'm temporarily limited in my responses. Let me try to help with a simpler answer.",
}

const fallbackSuffix = "\n\nI apologize if this doesn't fully address your question. Our systems are experiencing some temporary limitations."

// Fallback serves canned replies through the Streamer interface. It
// re-chunks and paces its output exactly like the live client, so the
// caller cannot tell which streamer is active.
type Fallback struct {
	config *Config
	pick   func(n int) int
}

// NewFallback creates the offline reply streamer.
func NewFallback(opts ...Option) *Fallback {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	cfg.Logger = cfg.Logger.With("component", "backend.fallback")

	return &Fallback{config: cfg, pick: rand.Intn}
}

// StreamMessage produces a paced stream of a canned reply.
func (f *Fallback) StreamMessage(ctx context.Context, req Request) (<-chan Chunk, error) {
	reply := f.Reply(req.Text)
	f.config.Logger.Debug("serving canned reply", "chars", len(reply))

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)

		pieces := splitChunks(reply, f.config.ChunkWords)
		for i, piece := range pieces {
			out <- Chunk{Kind: KindPartial, Text: piece + "\n", SessionID: req.SessionID}
			if i < len(pieces)-1 {
				select {
				case <-time.After(f.config.PacingDelay):
				case <-ctx.Done():
					out <- errorChunk(ctx.Err())
					return
				}
			}
		}
		out <- Chunk{Kind: KindFinal, Text: reply, SessionID: req.SessionID}
	}()
	return out, nil
}

// Reply picks the canned reply for a query: topic-matched lending
// knowledge when a keyword hits, a generic apology otherwise.
func (f *Fallback) Reply(query string) string {
	if query == "" {
		return genericFallbacks[f.pick(len(genericFallbacks))]
	}
	if topic := detectTopic(strings.ToLower(query)); topic != "" {
		return lendingKnowledge[topic] + fallbackSuffix
	}
	return genericFallbacks[f.pick(len(genericFallbacks))]
}

// Close releases nothing.
func (f *Fallback) Close() error {
	return nil
}

// topicOrder fixes the match precedence; map iteration would make
// multi-topic queries nondeterministic.
var topicOrder = []string{"definition", "risks", "benefits", "regulation"}

func detectTopic(query string) string {
	for _, topic := range topicOrder {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(query, kw) {
				return topic
			}
		}
	}
	return ""
}

var _ Streamer = (*Fallback)(nil)
