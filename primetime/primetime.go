// Package primetime answers newline-delimited JSON primality requests.
package primetime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/protohackers/cacher"
	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// ErrMalformed marks a request that is not a valid isPrime call.
var ErrMalformed = errors.New("malformed request")

var malformedReply = []byte(`{"error":"malformed request"}` + "\n")

type response struct {
	Method string `json:"method"`
	Prime  bool   `json:"prime"`
}

// Checker tests numbers for primality, memoizing integer results.
type Checker struct {
	cache cacher.Cacher[bool]
	ttl   time.Duration
}

// NewChecker returns a Checker storing results in cache for ttl. A nil
// cache disables memoization.
func NewChecker(cache cacher.Cacher[bool], ttl time.Duration) *Checker {
	if cache == nil {
		cache = cacher.NopCacher[bool]{}
	}

	return &Checker{cache: cache, ttl: ttl}
}

// IsPrime reports whether the JSON number literal n is a prime integer.
func (c *Checker) IsPrime(ctx context.Context, n json.Number) (bool, error) {
	i, ok := candidate(n)
	if !ok || i.Cmp(big.NewInt(2)) < 0 {
		return false, nil
	}

	return c.cache.GetOrFetch(ctx, i.String(), c.ttl, func(context.Context) (bool, error) {
		return i.ProbablyPrime(20), nil
	})
}

// maxExponent clamps decimal exponents that do not fit an int.
const maxExponent = 1 << 30

// candidate returns the integer value of the literal n when it could be
// prime. Non-integers and integers the exponent shifts past the last digit,
// which are multiples of ten, report false without being expanded, so the
// result never has more digits than n itself.
func candidate(n json.Number) (*big.Int, bool) {
	s := n.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	mantissa, expPart, hasExp := strings.Cut(strings.ToLower(s), "e")
	exp := 0
	if hasExp {
		v, err := strconv.Atoi(expPart)
		switch {
		case err == nil:
			exp = max(min(v, maxExponent), -maxExponent)
		case errors.Is(err, strconv.ErrRange) && strings.HasPrefix(expPart, "-"):
			exp = -maxExponent
		case errors.Is(err, strconv.ErrRange):
			exp = maxExponent
		default:
			return nil, false
		}
	}

	whole, frac, _ := strings.Cut(mantissa, ".")
	all := whole + frac
	if strings.Trim(all, "0") == "" {
		return new(big.Int), true
	}

	shift := exp - len(frac)
	if shift > 0 {
		return nil, false
	}

	cut := len(all) + shift
	if cut < 0 || strings.Trim(all[cut:], "0") != "" {
		return nil, false
	}

	i, ok := new(big.Int).SetString("0"+all[:cut], 10)
	if !ok {
		return nil, false
	}
	if neg {
		i.Neg(i)
	}

	return i, true
}

// ParseRequest validates one request line and returns its number.
//
// Parameters:
//   - line: The request without its trailing newline
//
// Returns:
//   - The number field, or an error wrapping ErrMalformed
func ParseRequest(line []byte) (json.Number, error) {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(line, &req); err != nil {
		return "", errors.Join(ErrMalformed, err)
	}

	var method string
	if err := json.Unmarshal(req["method"], &method); err != nil || method != "isPrime" {
		return "", ErrMalformed
	}

	raw := bytes.TrimSpace(req["number"])
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return "", ErrMalformed
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", errors.Join(ErrMalformed, err)
	}

	return n, nil
}

// Session serves one connection.
type Session struct {
	*tcpserver.BaseSession
	checker *Checker
}

// NewSessionFunc returns the session factory for tcpserver.
func NewSessionFunc(checker *Checker, log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log), checker: checker}
	}
}

// Handle answers requests until the peer disconnects or sends a malformed
// request, which gets one malformed reply before the connection closes.
func (s *Session) Handle() {
	ctx := context.Background()
	for {
		line, err := s.ReadLine()
		if err != nil {
			return
		}

		n, err := ParseRequest(line)
		if err != nil {
			s.Logger.Debug("malformed request", logger.Field{Key: "request", Value: string(line)})
			_ = s.Send(malformedReply)
			return
		}

		prime, err := s.checker.IsPrime(ctx, n)
		if err != nil {
			s.Logger.Error("prime check failed", logger.Field{Key: "error", Value: err.Error()})
			return
		}

		reply, _ := json.Marshal(response{Method: "isPrime", Prime: prime})
		if err := s.Send(append(reply, '\n')); err != nil {
			return
		}
	}
}
