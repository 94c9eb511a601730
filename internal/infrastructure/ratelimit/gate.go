// Package ratelimit implements signature admission control.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

const keyPrefix = "petitions:gate"

// Config holds the gate limits and lists. A zero limit disables that window.
type Config struct {
	IPWindow       time.Duration
	IPLimit        int
	DomainWindow   time.Duration
	DomainLimit    int
	Rules          []string
	AllowedIPs     []string
	BlockedIPs     []string
	AllowedDomains []string
	BlockedDomains []string
}

// Gate decides whether a new signature exceeds the admission limits. Windows are kept
// per petition.
type Gate struct {
	counter        Counter
	cfg            Config
	rules          []*govaluate.EvaluableExpression
	allowedIPs     []*net.IPNet
	blockedIPs     []*net.IPNet
	allowedDomains []string
	blockedDomains []string
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewGate compiles the rule expressions and address lists in cfg.
func NewGate(counter Counter, cfg Config, m *metrics.Metrics, logger zerolog.Logger) (*Gate, error) {
	g := &Gate{
		counter:        counter,
		cfg:            cfg,
		allowedDomains: lowerAll(cfg.AllowedDomains),
		blockedDomains: lowerAll(cfg.BlockedDomains),
		metrics:        m,
		logger:         logger.With().Str("service", "gate").Logger(),
	}
	var err error
	if g.allowedIPs, err = parseNets(cfg.AllowedIPs); err != nil {
		return nil, fmt.Errorf("allowed ips: %w", err)
	}
	if g.blockedIPs, err = parseNets(cfg.BlockedIPs); err != nil {
		return nil, fmt.Errorf("blocked ips: %w", err)
	}
	for _, rule := range cfg.Rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		expr, err := govaluate.NewEvaluableExpression(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule, err)
		}
		g.rules = append(g.rules, expr)
	}
	return g, nil
}

// Exceeded reports whether s should be marked fraudulent instead of validated.
func (g *Gate) Exceeded(ctx context.Context, s *signature.Signature) (bool, error) {
	ip := net.ParseIP(s.IPAddress)
	domain := strings.ToLower(s.Domain())

	if contains(g.allowedIPs, ip) || matchDomain(g.allowedDomains, domain) {
		return false, nil
	}
	if contains(g.blockedIPs, ip) {
		return g.reject(s, "blocked_ip"), nil
	}
	if matchDomain(g.blockedDomains, domain) {
		return g.reject(s, "blocked_domain"), nil
	}

	petition := strconv.FormatInt(s.PetitionID, 10)
	var ipCount, domainCount int64
	if ip != nil && g.cfg.IPLimit > 0 {
		n, err := g.counter.Incr(ctx, keyPrefix+":ip:"+petition+":"+ip.String(), g.cfg.IPWindow)
		if err != nil {
			return false, err
		}
		ipCount = n
		if n > int64(g.cfg.IPLimit) {
			return g.reject(s, "ip"), nil
		}
	}
	if domain != "" && g.cfg.DomainLimit > 0 {
		n, err := g.counter.Incr(ctx, keyPrefix+":domain:"+petition+":"+domain, g.cfg.DomainWindow)
		if err != nil {
			return false, err
		}
		domainCount = n
		if n > int64(g.cfg.DomainLimit) {
			return g.reject(s, "domain"), nil
		}
	}

	if len(g.rules) == 0 {
		return false, nil
	}
	params := map[string]interface{}{
		"ip_count":     float64(ipCount),
		"domain_count": float64(domainCount),
		"ip":           s.IPAddress,
		"domain":       domain,
		"location":     s.LocationCode,
	}
	var errs []error
	for _, expr := range g.rules {
		result, err := expr.Evaluate(params)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", expr.String(), err))
			continue
		}
		if matched, ok := result.(bool); ok && matched {
			return g.reject(s, "rule"), nil
		}
	}
	return false, errors.Join(errs...)
}

func (g *Gate) reject(s *signature.Signature, reason string) bool {
	g.metrics.GateRejected(reason)
	g.logger.Info().
		Int64("petition_id", s.PetitionID).
		Int64("signature_id", s.ID).
		Str("reason", reason).
		Msg("signature rejected by gate")
	return true
}

func parseNets(values []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", v)
			}
			bits := 128
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func contains(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// matchDomain matches the domain itself and its subdomains.
func matchDomain(domains []string, domain string) bool {
	if domain == "" {
		return false
	}
	for _, d := range domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
