package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openaddons/addonserve/internal/config"
	"github.com/openaddons/addonserve/internal/db"
	"github.com/openaddons/addonserve/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server          string
	slugCSV         string
	totalReq        int
	conc            int
	duration        time.Duration
	rate            float64
	installRate     float64
	abuseRate       float64
	stats           bool
	flush           bool
	redisAddr       string
	debug           bool
	label           string
	surgeInterval   time.Duration
	surgeDuration   time.Duration
	surgeMultiplier float64
	jitter          float64
)

var logger *zap.Logger

// HTTP client with proper resource limits
var httpClient *http.Client

// HTTP client for redirects that stops at the 302
var redirectClient *http.Client

var (
	addonSlugs = []string{"dark-mode-magic", "tab-session-keeper"}
	userAgents = []string{
		// Firefox desktop, current and older releases
		"Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13.4; rv:109.0) Gecko/20100101 Firefox/113.0",
		"Mozilla/5.0 (X11; Linux x86_64; rv:52.0) Gecko/20100101 Firefox/52.0",

		// Firefox for Android
		"Mozilla/5.0 (Android 13; Mobile; rv:109.0) Gecko/115.0 Firefox/115.0",
		"Mozilla/5.0 (Android 14; Mobile; rv:127.0) Gecko/127.0 Firefox/127.0",

		// Firefox for iOS, always refused
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/116.0 Mobile/15E148 Safari/605.1.15",

		// Non-Firefox browsers
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
	abuseReasons = []string{"spam", "broken", "settings", "other"}
)

const statsInterval = 5 * time.Second

var (
	countSent         uint64
	countSuccess      uint64
	countCompatible   uint64
	countIncompatible uint64
	countLimited      uint64
	countErrors       uint64
	countInstalls     uint64
	countReports      uint64
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "addonserve base URL")
	flag.StringVar(&slugCSV, "slugs", "dark-mode-magic,tab-session-keeper,midnight-velvet,quick-wiki-search", "comma-separated add-on slugs")
	flag.IntVar(&totalReq, "requests", 1000, "total compatibility checks to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&installRate, "install-rate", 0.3, "probability of redeeming an install URL per compatible verdict")
	flag.Float64Var(&abuseRate, "abuse-rate", 0.002, "probability of filing an abuse report per check")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "flush redis counters before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&surgeInterval, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&surgeDuration, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&surgeMultiplier, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize HTTP client with proper resource limits
	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
			DisableKeepAlives:     false,
		},
	}

	// Install and outgoing URLs redirect off-site; stop at the 302
	redirectClient = &http.Client{
		Timeout:   10 * time.Second,
		Transport: httpClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		cfg := config.Load()
		addr := redisAddr
		if addr == "" {
			addr = cfg.RedisAddr
		}
		store, err := db.InitRedis(addr)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}

		// Only the decision and install counters; nothing else lives in Redis
		patterns := []string{
			"compat:*",
			"installs:*",
		}

		flushedCount := 0
		for _, pattern := range patterns {
			keys, err := store.Client.Keys(store.Ctx, pattern).Result()
			if err != nil {
				logger.Error("failed to get keys for pattern", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			if len(keys) > 0 {
				if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
					logger.Error("failed to delete keys", zap.String("pattern", pattern), zap.Error(err))
					continue
				}
				flushedCount += len(keys)
			}
		}

		store.Close()
		logger.Info("redis counters flushed",
			zap.String("addr", addr),
			zap.Int("keys_deleted", flushedCount))
	}

	addonSlugs = strings.Split(slugCSV, ",")
	for i := range addonSlugs {
		addonSlugs[i] = strings.TrimSpace(addonSlugs[i])
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if surgeInterval > 0 && surgeDuration > 0 && surgeMultiplier > 0 {
				elapsed := time.Since(start)
				if elapsed%surgeInterval < surgeDuration {
					effective = time.Duration(float64(effective) / surgeMultiplier)
				}
			}
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			atomic.AddUint64(&countSent, 1)

			slug := addonSlugs[r.Intn(len(addonSlugs))]
			ua := userAgents[r.Intn(len(userAgents))]
			ip := userIPs[r.Intn(len(userIPs))]

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, "GET", server+"/compat/"+slug, nil)
			if err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("request build error", zap.Error(err))
				return
			}
			req.Header.Set("User-Agent", ua)
			req.Header.Set("X-Forwarded-For", ip)

			resp, err := httpClient.Do(req)
			if err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("compat request error", zap.Error(err))
				return
			}
			bodyBytes, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("read body error", zap.Error(err))
				return
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				atomic.AddUint64(&countLimited, 1)
				logger.Debug("rate limited", zap.String("slug", slug), zap.String("ip", ip))
				return
			}
			if resp.StatusCode != http.StatusOK {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
				return
			}

			var verdict struct {
				Slug       string  `json:"slug"`
				Compatible bool    `json:"compatible"`
				Reason     *string `json:"reason"`
				InstallURL string  `json:"install_url"`
			}
			if err := json.Unmarshal(bodyBytes, &verdict); err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(bodyBytes))))
				return
			}
			atomic.AddUint64(&countSuccess, 1)

			if !verdict.Compatible {
				atomic.AddUint64(&countIncompatible, 1)
				reason := ""
				if verdict.Reason != nil {
					reason = *verdict.Reason
				}
				logger.Debug("incompatible", zap.String("slug", slug), zap.String("reason", reason), zap.String("ua", ua))
			} else {
				atomic.AddUint64(&countCompatible, 1)
				if verdict.InstallURL != "" && r.Float64() < installRate {
					instURL := verdict.InstallURL
					if strings.HasPrefix(instURL, "/") {
						instURL = strings.TrimRight(server, "/") + instURL
					}
					instCtx, instCancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer instCancel()
					instReq, err := http.NewRequestWithContext(instCtx, "GET", instURL, nil)
					if err != nil {
						atomic.AddUint64(&countErrors, 1)
						logger.Error("install request build error", zap.Error(err))
						return
					}
					instReq.Header.Set("User-Agent", ua)
					instReq.Header.Set("X-Forwarded-For", ip)
					instResp, err := redirectClient.Do(instReq)
					if err != nil {
						atomic.AddUint64(&countErrors, 1)
						logger.Error("install get error", zap.Error(err))
						return
					}
					_ = instResp.Body.Close()
					if instResp.StatusCode == http.StatusFound {
						atomic.AddUint64(&countInstalls, 1)
					} else {
						atomic.AddUint64(&countErrors, 1)
						logger.Error("install unexpected status", zap.Int("status", instResp.StatusCode))
						return
					}
				}
			}

			if r.Float64() < abuseRate {
				report := map[string]string{
					"slug":    slug,
					"reason":  abuseReasons[r.Intn(len(abuseReasons))],
					"message": "reported by traffic simulator",
				}
				blob, _ := json.Marshal(report)
				abCtx, abCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer abCancel()
				abReq, err := http.NewRequestWithContext(abCtx, "POST", server+"/abuse", bytes.NewReader(blob))
				if err != nil {
					atomic.AddUint64(&countErrors, 1)
					logger.Error("abuse request build error", zap.Error(err))
					return
				}
				abReq.Header.Set("Content-Type", "application/json")
				abReq.Header.Set("User-Agent", ua)
				abReq.Header.Set("X-Forwarded-For", ip)
				abResp, err := httpClient.Do(abReq)
				if err != nil {
					atomic.AddUint64(&countErrors, 1)
					logger.Error("abuse post error", zap.Error(err))
					return
				}
				_ = abResp.Body.Close()
				if abResp.StatusCode == http.StatusCreated {
					atomic.AddUint64(&countReports, 1)
				}
			}

			logger.Debug("request", zap.String("slug", slug), zap.String("ip", ip), zap.String("ua", ua), zap.Bool("compatible", verdict.Compatible))
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	succ := atomic.LoadUint64(&countSuccess)
	comp := atomic.LoadUint64(&countCompatible)
	incomp := atomic.LoadUint64(&countIncompatible)
	limited := atomic.LoadUint64(&countLimited)
	errs := atomic.LoadUint64(&countErrors)
	inst := atomic.LoadUint64(&countInstalls)
	reports := atomic.LoadUint64(&countReports)
	var installShare float64
	if comp > 0 {
		installShare = float64(inst) / float64(comp)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", sent),
		zap.Uint64("success", succ),
		zap.Uint64("compatible", comp),
		zap.Uint64("incompatible", incomp),
		zap.Uint64("rate_limited", limited),
		zap.Uint64("errors", errs),
		zap.Uint64("installs", inst),
		zap.Uint64("abuse_reports", reports),
		zap.Float64("install_rate", installShare))
}
