// Package command implements the in-band command dispatcher: it
// normalizes raw client text, matches a registered handler by prefix,
// and runs it without ever propagating a handler panic onto the relay
// loop.
package command

import (
	"log"
	"strings"
)

// Handler processes a command's arguments. A Handler is never allowed
// to crash the dispatcher — any panic it raises is caught and logged.
type Handler func(args []string)

// Registry normalizes input, matches a single-character prefix, and
// dispatches to a registered Handler.
type Registry struct {
	prefix   byte
	handlers map[string]Handler
}

// New creates a Registry using prefix as the command marker. An invalid
// prefix (not exactly one character when configured from a string)
// should be resolved by the caller before reaching here; New itself
// always accepts whatever single byte it is given.
func New(prefix byte) *Registry {
	return &Registry{prefix: prefix, handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name. name is lowercased;
// callers should pass names already restricted to [a-z0-9_-].
func (r *Registry) Register(name string, h Handler) {
	r.handlers[strings.ToLower(name)] = h
}

// Normalize strips control bytes (0x00-0x1F), a leading U+FEFF byte-
// order mark, and leading whitespace.
func Normalize(text string) string {
	b := []byte(text)
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c <= 0x1F {
			continue
		}
		out = append(out, c)
	}
	s := string(out)
	s = strings.TrimPrefix(s, "\xef\xbb\xbf")
	return strings.TrimLeft(s, " \t\r\n")
}

// Parse splits normalized text into a command name (lowercased, limited
// to the leading run of [a-z0-9_-]) and its remaining whitespace-
// separated arguments. ok is false if text does not start with the
// registry's prefix.
func (r *Registry) Parse(text string) (name string, args []string, ok bool) {
	normalized := Normalize(text)
	if len(normalized) == 0 || normalized[0] != r.prefix {
		return "", nil, false
	}
	rest := normalized[1:]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	name = leadingCommandToken(fields[0])
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}

func leadingCommandToken(token string) string {
	token = strings.ToLower(token)
	end := 0
	for end < len(token) {
		c := token[end]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			end++
			continue
		}
		break
	}
	return token[:end]
}

// Execute parses and runs text against the registry. It returns true iff
// a handler ran — whether or not that handler panicked — so the caller
// knows to drop the original text from the wire. Handler panics are
// caught and logged, never propagated.
func (r *Registry) Execute(text string) (ran bool) {
	name, args, ok := r.Parse(text)
	if !ok {
		return false
	}
	handler, exists := r.handlers[name]
	if !exists {
		return false
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("command: handler %q panicked: %v", name, rec)
			}
		}()
		handler(args)
	}()
	return true
}
