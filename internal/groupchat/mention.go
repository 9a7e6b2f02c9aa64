package groupchat

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far an unknown mention may be from a persona
// for that persona to be offered as a suggestion.
const maxSuggestDistance = 2

// Mention is one @-reference found in a message body.
type Mention struct {
	Token string
	// Explicit is set for the bracketed form @[full-id].
	Explicit bool
}

// ParseMentions extracts mentions from text in order of appearance.
//
// Two forms are recognised: @token, where token is made of letters, digits,
// '_', '-' and '.', and @[anything], which may contain spaces. An '@' that
// directly follows a token character (as in an email address) is ignored,
// and trailing '.' or '-' is dropped so that "ask @planner." works.
// Repeated mentions are reported once.
func ParseMentions(text string) []Mention {
	rs := []rune(text)
	seen := make(map[string]bool)
	var out []Mention

	add := func(m Mention) {
		key := strings.ToLower(m.Token)
		if m.Token == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, m)
	}

	for i := 0; i < len(rs); i++ {
		if rs[i] != '@' {
			continue
		}
		if i > 0 && isTokenRune(rs[i-1]) {
			continue
		}

		if i+1 < len(rs) && rs[i+1] == '[' {
			end := -1
			for j := i + 2; j < len(rs); j++ {
				if rs[j] == ']' {
					end = j
					break
				}
			}
			if end < 0 {
				continue
			}
			add(Mention{Token: strings.TrimSpace(string(rs[i+2 : end])), Explicit: true})
			i = end
			continue
		}

		j := i + 1
		for j < len(rs) && isTokenRune(rs[j]) {
			j++
		}
		add(Mention{Token: strings.TrimRight(string(rs[i+1:j]), ".-")})
		i = j - 1
	}
	return out
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// NormalizePersona folds a persona name into the form mention tokens are
// compared in: lower case, with runs of whitespace replaced by '-'.
func NormalizePersona(persona string) string {
	return strings.ToLower(strings.Join(strings.Fields(persona), "-"))
}

// Directory answers the lookups mention resolution needs.
type Directory interface {
	// LookupID returns the canonical id for a full agent id.
	LookupID(id string) (string, bool)
	// MatchToken returns every agent a bare token refers to. Persona matches
	// take precedence over short-id matches.
	MatchToken(token string) []string
	// Personas lists the normalized personas of all known agents.
	Personas() []string
}

// Resolution is the outcome of resolving the mentions in a message.
type Resolution struct {
	// IDs are the addressed agents in order of first mention.
	IDs []string
	// Unknown holds tokens that matched no agent.
	Unknown []string
	// Suggestions maps an unknown token to the closest persona.
	Suggestions map[string]string
}

// Resolver maps mention tokens to agent ids.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver backed by dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve parses text and returns the agents it addresses. A token that
// matches several personas addresses all of them. Tokens that match nothing
// are collected in Unknown and otherwise ignored.
func (r *Resolver) Resolve(text string) Resolution {
	var res Resolution
	seen := make(map[string]bool)

	for _, m := range ParseMentions(text) {
		ids := r.lookup(m)
		if len(ids) == 0 {
			res.Unknown = append(res.Unknown, m.Token)
			if s := r.suggest(m.Token); s != "" {
				if res.Suggestions == nil {
					res.Suggestions = make(map[string]string)
				}
				res.Suggestions[m.Token] = s
			}
			continue
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				res.IDs = append(res.IDs, id)
			}
		}
	}
	return res
}

// ResolveToken resolves a single bare or bracketed target, with or without
// its leading '@'.
func (r *Resolver) ResolveToken(token string) []string {
	token = strings.TrimSpace(token)
	explicit := false
	if strings.HasPrefix(token, "@[") && strings.HasSuffix(token, "]") {
		token = strings.TrimSpace(token[2 : len(token)-1])
		explicit = true
	} else {
		token = strings.TrimPrefix(token, "@")
	}
	if token == "" {
		return nil
	}
	if id, ok := r.dir.LookupID(token); ok {
		return []string{id}
	}
	return r.lookup(Mention{Token: token, Explicit: explicit})
}

func (r *Resolver) lookup(m Mention) []string {
	if m.Explicit {
		if id, ok := r.dir.LookupID(m.Token); ok {
			return []string{id}
		}
	}
	return r.dir.MatchToken(m.Token)
}

func (r *Resolver) suggest(token string) string {
	token = NormalizePersona(token)
	best, bestDist := "", maxSuggestDistance+1
	for _, p := range r.dir.Personas() {
		if d := levenshtein.ComputeDistance(token, p); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}
