package auth

import (
	"net/url"
	"strings"
)

type kv struct {
	key   string
	value string
}

// Params is an insertion-ordered parameter list. Binance signs the exact
// concatenated query string, so map iteration order is not acceptable.
type Params struct {
	pairs []kv
}

// NewParams returns an empty ordered parameter list.
func NewParams() *Params {
	return &Params{}
}

// Set appends key=value, replacing the value in place if key already exists.
func (p *Params) Set(key, value string) *Params {
	for i := range p.pairs {
		if p.pairs[i].key == key {
			p.pairs[i].value = value
			return p
		}
	}
	p.pairs = append(p.pairs, kv{key: key, value: value})
	return p
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	for i := range p.pairs {
		if p.pairs[i].key == key {
			return true
		}
	}
	return false
}

// Get returns the value for key.
func (p *Params) Get(key string) (string, bool) {
	for i := range p.pairs {
		if p.pairs[i].key == key {
			return p.pairs[i].value, true
		}
	}
	return "", false
}

// Len reports the number of pairs.
func (p *Params) Len() int {
	return len(p.pairs)
}

// Encode renders k=v&... preserving insertion order, with URL escaping.
func (p *Params) Encode() string {
	var b strings.Builder
	for i, pair := range p.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.value))
	}
	return b.String()
}
