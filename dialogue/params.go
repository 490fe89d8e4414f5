package dialogue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/moyoez/pdfbot-go/types"
)

// ParsePageSelection parses "1,3-5" into sorted, de-duplicated 1-based pages.
// Any invalid token or out-of-range page rejects the whole selection.
func ParsePageSelection(s string, pageCount int) ([]int, error) {
	pages, err := expand(s, pageCount)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}

// ParsePermutation parses "3,1,2" and requires every page 1..pageCount exactly once.
func ParsePermutation(s string, pageCount int) ([]int, error) {
	order, err := expand(s, pageCount)
	if err != nil {
		return nil, err
	}
	if len(order) != pageCount {
		return nil, types.ValidationError(
			fmt.Sprintf("new order must list all %d pages exactly once, got %d entries", pageCount, len(order)), nil)
	}
	seen := make([]bool, pageCount+1)
	for _, p := range order {
		if seen[p] {
			return nil, types.ValidationError(fmt.Sprintf("page %d appears more than once", p), nil)
		}
		seen[p] = true
	}
	return order, nil
}

// ParseInsertPosition parses the page after which the insert goes: 0 means the front,
// pageCount the end. Empty input appends.
func ParseInsertPosition(s string, pageCount int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pageCount, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, types.ValidationError(fmt.Sprintf("%q is not a page number", s), err)
	}
	if n < 0 || n > pageCount {
		return 0, types.ValidationError(fmt.Sprintf("position must be between 0 and %d", pageCount), nil)
	}
	return n, nil
}

// ParseCryptoParams parses "encrypt <password>" or "decrypt <password>".
// The password is everything after the operation, trimmed.
func ParseCryptoParams(s string) (types.CryptoOp, string, error) {
	s = strings.TrimSpace(s)
	opText, rest, _ := strings.Cut(s, " ")
	password := strings.TrimSpace(rest)
	var op types.CryptoOp
	switch strings.ToLower(opText) {
	case string(types.OpEncrypt):
		op = types.OpEncrypt
	case string(types.OpDecrypt):
		op = types.OpDecrypt
	default:
		return "", "", types.ValidationError("use 'encrypt <password>' or 'decrypt <password>'", nil)
	}
	if password == "" {
		return "", "", types.ValidationError("password must not be empty", nil)
	}
	return op, password, nil
}

// ParsePassword validates a bare password (batch encrypt). Like ParseCryptoParams it
// keeps inner spaces and trims the ends, so either path can undo the other.
func ParsePassword(s string) (string, error) {
	p := strings.TrimSpace(s)
	if p == "" {
		return "", types.ValidationError("password must not be empty", nil)
	}
	return p, nil
}

// ParseAuthCode splits "code [state]" as pasted after authorization.
func ParseAuthCode(s string) (code, state string, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return fields[0], "", nil
	case 2:
		return fields[0], fields[1], nil
	}
	return "", "", types.ValidationError("paste the authorization code (optionally followed by the state)", nil)
}

// expand turns "1,3-5" into [1 3 4 5] in input order, checking bounds.
func expand(s string, pageCount int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.ValidationError("no pages given", nil)
	}
	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, types.ValidationError(fmt.Sprintf("empty entry in %q", s), nil)
		}
		lo, hi, isRange := strings.Cut(tok, "-")
		start, err := page(lo, pageCount)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = page(hi, pageCount); err != nil {
				return nil, err
			}
			if end < start {
				return nil, types.ValidationError(fmt.Sprintf("range %q is reversed", tok), nil)
			}
		}
		for p := start; p <= end; p++ {
			out = append(out, p)
		}
	}
	return out, nil
}

func page(s string, pageCount int) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, types.ValidationError(fmt.Sprintf("%q is not a page number", s), err)
	}
	if n < 1 || n > pageCount {
		return 0, types.ValidationError(fmt.Sprintf("page %d is out of range (document has %d pages)", n, pageCount), nil)
	}
	return n, nil
}
