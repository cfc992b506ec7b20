package instruments

import (
	"fmt"
	"sync"

	"barcollector/pkg/kite"
)

// Store is the in-memory instrument master: token and symbol lookups for
// the stream handler and per-instrument tick sizes for the aggregators.
type Store struct {
	mu       sync.RWMutex
	byToken  map[uint32]kite.Instrument
	bySymbol map[string]kite.Instrument
}

func NewStore() *Store {
	return &Store{
		byToken:  make(map[uint32]kite.Instrument),
		bySymbol: make(map[string]kite.Instrument),
	}
}

// Replace swaps the full instrument set.
func (s *Store) Replace(list []kite.Instrument) {
	byToken := make(map[uint32]kite.Instrument, len(list))
	bySymbol := make(map[string]kite.Instrument, len(list))
	for _, in := range list {
		byToken[in.Token] = in
		bySymbol[in.TradingSymbol] = in
	}

	s.mu.Lock()
	s.byToken = byToken
	s.bySymbol = bySymbol
	s.mu.Unlock()
}

func (s *Store) ByToken(token uint32) (kite.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.byToken[token]
	return in, ok
}

func (s *Store) BySymbol(symbol string) (kite.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.bySymbol[symbol]
	return in, ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}

// TokensFor resolves the watchlist symbols to instrument tokens for the
// WebSocket subscription. Unknown symbols fail the whole resolution.
func (s *Store) TokensFor(symbols []string) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]uint32, 0, len(symbols))
	for _, sym := range symbols {
		in, ok := s.bySymbol[sym]
		if !ok {
			return nil, fmt.Errorf("unknown trading symbol: %s", sym)
		}
		tokens = append(tokens, in.Token)
	}
	return tokens, nil
}
