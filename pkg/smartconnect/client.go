// Package smartconnect is a minimal Angel One SmartAPI client covering the
// session and historical candle endpoints.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PIN", totpCode); err != nil { ... }
//	raw, err := sc.GetCandleData(ctx, smartconnect.CandleParams{
//	    Exchange: "NSE", SymbolToken: "2885", Interval: smartconnect.IntervalOneDay,
//	    From: time.Now().AddDate(0, 0, -30), To: time.Now(),
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultRoot    = "https://apiconnect.angelone.in"
	defaultTimeout = 10 * time.Second

	IntervalOneDay = "ONE_DAY"

	// candleTimeLayout is the from/to format of getCandleData, in IST.
	candleTimeLayout = "2006-01-02 15:04"
)

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// authErrorCodes are SmartAPI error codes meaning the session is invalid.
var authErrorCodes = map[string]bool{
	"AG8001": true, // invalid token
	"AG8002": true, // token expired
	"AG8003": true, // token missing
	"AB1010": true, // session expired
}

var ist = time.FixedZone("IST", 5*3600+1800)

// Config configures the client.
type Config struct {
	APIKey string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 10s
	ClientLocalIP  string        // default: first non-loopback IPv4, else 127.0.0.1
	ClientPublicIP string        // default: ClientLocalIP
	ClientMAC      string        // default: first interface MAC
	HTTPClient     *http.Client  // optional; overrides Timeout
}

// APIError is a SmartAPI error response.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("smartapi %s: %s (http %d)", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("smartapi: %s (http %d)", e.Message, e.HTTPStatus)
}

// IsAuth reports whether the error means the session must be renewed.
func (e *APIError) IsAuth() bool {
	return e.HTTPStatus == http.StatusUnauthorized ||
		e.HTTPStatus == http.StatusForbidden ||
		authErrorCodes[e.Code]
}

// IsAuthError reports whether err is a SmartAPI session error.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// Session holds the tokens returned by a successful login.
type Session struct {
	ClientCode   string
	JWTToken     string
	RefreshToken string
	FeedToken    string
}

// SmartConnect is safe for concurrent use.
type SmartConnect struct {
	apiKey     string
	rootURL    string
	httpClient *http.Client

	clientLocalIP  string
	clientPublicIP string
	clientMAC      string

	mu          sync.RWMutex
	accessToken string
	session     Session
}

// NewSmartConnect creates a client. No network calls are made.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     client,
		clientLocalIP:  cfg.ClientLocalIP,
		clientPublicIP: cfg.ClientPublicIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")

	sc.mu.RLock()
	if sc.accessToken != "" {
		h.Set("Authorization", "Bearer "+sc.accessToken)
	}
	sc.mu.RUnlock()
	return h
}

// post sends params as JSON and returns the raw body of a successful response.
func (sc *SmartConnect) post(ctx context.Context, route string, params map[string]any) ([]byte, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}

	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", route, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartapi %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("smartapi %s read: %w", route, err)
	}

	if !gjson.ValidBytes(raw) {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("smartapi %s: couldn't parse JSON response", route)
	}

	res := gjson.ParseBytes(raw)
	if et := res.Get("error_type").String(); et != "" {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Code: et, Message: res.Get("message").String()}
	}
	if resp.StatusCode != http.StatusOK || !res.Get("status").Bool() {
		slog.Debug("smartapi request failed",
			slog.String("component", "smartconnect"),
			slog.String("route", route),
			slog.Int("status", resp.StatusCode),
			slog.String("message", res.Get("message").String()),
		)
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Code:       res.Get("errorcode").String(),
			Message:    res.Get("message").String(),
		}
	}
	return raw, nil
}

// ---- Session ----

// GenerateSession logs in with client code, PIN and a current TOTP code and
// stores the JWT for subsequent calls.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) (Session, error) {
	raw, err := sc.post(ctx, "api.login", map[string]any{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totp,
	})
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}

	data := gjson.GetBytes(raw, "data")
	s := Session{
		ClientCode:   clientCode,
		JWTToken:     data.Get("jwtToken").String(),
		RefreshToken: data.Get("refreshToken").String(),
		FeedToken:    data.Get("feedToken").String(),
	}
	if s.JWTToken == "" {
		return Session{}, errors.New("login: empty jwt token in response")
	}

	sc.mu.Lock()
	sc.accessToken = s.JWTToken
	sc.session = s
	sc.mu.Unlock()
	return s, nil
}

// Session returns the current session; ok is false before a login.
func (sc *SmartConnect) Session() (s Session, ok bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.session, sc.accessToken != ""
}

// TerminateSession logs out and clears the stored tokens.
func (sc *SmartConnect) TerminateSession(ctx context.Context, clientCode string) error {
	_, err := sc.post(ctx, "api.logout", map[string]any{"clientcode": clientCode})
	sc.mu.Lock()
	sc.accessToken = ""
	sc.session = Session{}
	sc.mu.Unlock()
	return err
}

// ---- Historical data ----

// CandleParams selects a historical candle range.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string
	From        time.Time
	To          time.Time
}

// GetCandleData returns the raw getCandleData response. Rows are under
// "data" as [timestamp, open, high, low, close, volume].
func (sc *SmartConnect) GetCandleData(ctx context.Context, p CandleParams) ([]byte, error) {
	if p.Interval == "" {
		p.Interval = IntervalOneDay
	}
	return sc.post(ctx, "api.candle.data", map[string]any{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.From.In(ist).Format(candleTimeLayout),
		"todate":      p.To.In(ist).Format(candleTimeLayout),
	})
}
