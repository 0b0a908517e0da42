package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/triarb/triarb-api/internal/auth"
	"github.com/triarb/triarb-api/internal/database"
	"github.com/triarb/triarb-api/internal/engine"
	"github.com/triarb/triarb-api/internal/events"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/rules"
	"github.com/triarb/triarb-api/internal/scanner"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/internal/wallet"
	"github.com/triarb/triarb-api/pkg/middleware"
)

const (
	numClients      = 3
	tradesPerClient = 10
	depositAmount   = "50000"
	startAmount     = "100"
	jwtSecret       = "simulation-secret-key"
	serverAddress   = "http://localhost:8080"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives one authenticated client through the full
// deposit, scan and trade flow over HTTP
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
	statsMu   *sync.Mutex
}

// newSimulationClient registers fresh API credentials, funds the wallet
// via the deposit flow and returns an authenticated client
func newSimulationClient(stats map[string]*routeStats, statsMu *sync.Mutex) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats:   stats,
		statsMu: statsMu,
	}

	apiKey := "sim-" + uuid.New().String()
	apiSecret := uuid.New().String()

	if err := sc.register(apiKey, apiSecret); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	token, err := sc.authenticate(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	if err := sc.fundWallet(decimal.RequireFromString(depositAmount)); err != nil {
		return nil, fmt.Errorf("failed to fund wallet: %w", err)
	}

	return sc, nil
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	rs, ok := sc.stats[route]
	if !ok {
		return
	}
	rs.addDuration(time.Since(start))
	if failed {
		rs.failures++
	}
}

// doJSON performs one authenticated request and decodes the response
// envelope's data field into out when out is non-nil
func (sc *simulationClient) doJSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(envelope.Data, out)
}

func (sc *simulationClient) register(apiKey, apiSecret string) error {
	start := time.Now()
	err := sc.doJSON("POST", "/api/v1/auth/register", map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}, nil)
	sc.record("auth", start, err != nil)
	return err
}

func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	var result struct {
		Token string `json:"jwt_token"`
	}
	err := sc.doJSON("POST", "/api/v1/auth/token", map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}, &result)
	sc.record("auth", start, err != nil)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

// fundWallet walks the full deposit lifecycle: request, mark sent,
// operator confirmation
func (sc *simulationClient) fundWallet(amount decimal.Decimal) error {
	start := time.Now()
	var deposit struct {
		DepositID string `json:"deposit_id"`
	}
	err := sc.doJSON("POST", "/api/v1/wallet/deposits", map[string]interface{}{
		"amount":   amount,
		"currency": "USDT",
	}, &deposit)
	if err == nil {
		err = sc.doJSON("POST", "/api/v1/wallet/deposits/"+deposit.DepositID+"/sent", map[string]string{
			"blockchain_tx_id": "0x" + uuid.New().String(),
		}, nil)
	}
	if err == nil {
		err = sc.doJSON("POST", "/api/v1/internal/deposits/"+deposit.DepositID+"/confirm", map[string]string{
			"note": "simulated transfer verified",
		}, nil)
	}
	sc.record("deposit", start, err != nil)
	return err
}

func (sc *simulationClient) scan() (*types.ScanResponse, error) {
	start := time.Now()
	var result types.ScanResponse
	err := sc.doJSON("GET", "/api/v1/scan?base_coin=USDT&start_amount="+startAmount, nil, &result)
	sc.record("scan", start, err != nil)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) executeTrade(opp types.Opportunity) (*types.TradeAttempt, error) {
	start := time.Now()
	var attempt types.TradeAttempt
	err := sc.doJSON("POST", "/api/v1/trades", map[string]interface{}{
		"opportunity":  opp,
		"start_amount": decimal.RequireFromString(startAmount),
	}, &attempt)
	sc.record("trade", start, err != nil)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (sc *simulationClient) getWallet() (*types.WalletResponse, error) {
	start := time.Now()
	var w types.WalletResponse
	err := sc.doJSON("GET", "/api/v1/wallet", nil, &w)
	sc.record("wallet", start, err != nil)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the arbitrage simulation: it starts a local API server, then
// drives several concurrent clients through deposit, scan and trade cycles
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"auth":    {name: "Authentication"},
		"deposit": {name: "Deposit Flow"},
		"scan":    {name: "Scan"},
		"trade":   {name: "Execute Trade"},
		"wallet":  {name: "Get Wallet"},
	}
	var statsMu sync.Mutex

	summary := struct {
		mu             sync.Mutex
		totalTrades    int
		completed      int
		failed         int
		totalProfit    decimal.Decimal
		statusCounts   map[string]int
		exchangeCounts map[string]int
	}{
		statusCounts:   make(map[string]int),
		exchangeCounts: make(map[string]int),
	}

	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientNum int) {
			defer wg.Done()

			sc, err := newSimulationClient(stats, &statsMu)
			if err != nil {
				log.Error().Err(err).Int("client", clientNum).Msg("Failed to initialize simulation client")
				return
			}

			for t := 0; t < tradesPerClient; t++ {
				scanResult, err := sc.scan()
				if err != nil {
					log.Error().Err(err).Int("client", clientNum).Msg("Scan failed")
					continue
				}
				if len(scanResult.Opportunities) == 0 {
					log.Warn().Int("client", clientNum).Msg("No opportunities found")
					continue
				}

				// Commit to the most profitable cycle
				opp := scanResult.Opportunities[0]
				attempt, err := sc.executeTrade(opp)

				summary.mu.Lock()
				summary.totalTrades++
				if err != nil {
					summary.failed++
					summary.mu.Unlock()
					log.Error().Err(err).Int("client", clientNum).Msg("Trade rejected")
					continue
				}
				summary.statusCounts[attempt.Status]++
				summary.exchangeCounts[attempt.Exchange]++
				if attempt.Status == types.AttemptStatusCompleted {
					summary.completed++
					summary.totalProfit = summary.totalProfit.Add(attempt.ActualProfit)
				} else {
					summary.failed++
				}
				summary.mu.Unlock()

				log.Info().
					Int("client", clientNum).
					Str("attempt_id", attempt.AttemptID).
					Str("exchange", attempt.Exchange).
					Str("status", attempt.Status).
					Str("actual_profit", attempt.ActualProfit.String()).
					Msg("Trade attempt finished")
			}

			if w, err := sc.getWallet(); err == nil {
				log.Info().
					Int("client", clientNum).
					Str("balance", w.Balance.String()).
					Msg("Final wallet balance")
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("ARBITRAGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Trade Statistics
----------------
Total Attempts:   %d
Completed:        %d
Failed:           %d
Total Profit:     %s USDT
Duration:         %v

Status Distribution
-------------------
`, summary.totalTrades, summary.completed, summary.failed,
		summary.totalProfit.StringFixed(8), duration.Round(time.Millisecond))

	for status, count := range summary.statusCounts {
		barLength := 0
		if summary.totalTrades > 0 {
			barLength = count * 20 / summary.totalTrades
		}
		fmt.Printf("%-20s: %s (%d)\n", status, strings.Repeat("#", barLength), count)
	}

	fmt.Println("\nExchange Distribution")
	fmt.Println("---------------------")
	for name, count := range summary.exchangeCounts {
		fmt.Printf("%-10s: %d\n", name, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_attempts", summary.totalTrades).
		Int("completed", summary.completed).
		Str("total_profit", summary.totalProfit.String()).
		Dur("duration", duration).
		Msg("Simulation completed")

	printPerformanceStats(stats)
}

// startServer initializes and starts the arbitrage API server backed by an
// in-memory database and simulated exchange gateways
func startServer() error {
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := events.NewBus()

	registry := exchange.NewRegistry()
	registry.Register(exchange.NewSimulated(exchange.SimulatedConfig{
		Name:            "binance",
		MinLatency:      5,
		MaxLatency:      40,
		SuccessRate:     0.95,
		LiquidityFactor: 0.9,
		FeeRate:         0.001,
	}, simulationTickers("binance")))
	registry.Register(exchange.NewSimulated(exchange.SimulatedConfig{
		Name:            "bybit",
		MinLatency:      10,
		MaxLatency:      60,
		SuccessRate:     0.9,
		LiquidityFactor: 0.8,
		FeeRate:         0.001,
	}, simulationTickers("bybit")))

	walletService := wallet.NewService(db, bus)
	authService := auth.NewService(db, jwtSecret, walletService)

	catalog, err := rules.NewCatalog(db)
	if err != nil {
		return fmt.Errorf("failed to initialize pair rule catalog: %w", err)
	}

	scannerService := scanner.NewService(registry)
	tradingEngine := engine.NewEngine(db, catalog, registry, walletService, bus, engine.Config{})

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService)
	walletHandlers := wallet.NewGinHandlers(walletService)
	scannerHandlers := scanner.NewGinHandlers(scannerService, "USDT", decimal.RequireFromString(startAmount))
	engineHandlers := engine.NewGinHandlers(tradingEngine)

	setupRoutes(router, authHandlers, scannerHandlers, engineHandlers, walletHandlers)

	return router.Run(":8080")
}

// setupRoutes configures the endpoints exercised by the simulation
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	scannerHandlers *scanner.GinHandlers,
	engineHandlers *engine.GinHandlers,
	walletHandlers *wallet.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		scan := v1.Group("/scan")
		scan.Use(middleware.JWTAuth(jwtSecret))
		{
			scan.GET("", scannerHandlers.ScanHandler())
		}

		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.POST("", engineHandlers.ExecuteTradeHandler())
			trades.GET("/:attempt_id", engineHandlers.GetAttemptHandler())
		}

		walletGroup := v1.Group("/wallet")
		walletGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			walletGroup.GET("", walletHandlers.GetWalletHandler())
			walletGroup.POST("/deposits", walletHandlers.CreateDepositHandler())
			walletGroup.POST("/deposits/:deposit_id/sent", walletHandlers.MarkDepositSentHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/deposits/:deposit_id/confirm", walletHandlers.ConfirmDepositHandler())
		}
	}
}

// simulationTickers seeds each simulated exchange with quotes that leave a
// small triangular edge so scans reliably surface opportunities
func simulationTickers(name string) types.TickerSnapshot {
	quote := func(symbol, bid, ask string) types.TickerQuote {
		return types.TickerQuote{
			Symbol: symbol,
			Bid:    decimal.RequireFromString(bid),
			Ask:    decimal.RequireFromString(ask),
		}
	}

	if name == "bybit" {
		return types.TickerSnapshot{
			"BTCUSDT": quote("BTCUSDT", "30010.00", "30012.00"),
			"ETHUSDT": quote("ETHUSDT", "2077.00", "2077.50"),
			"ETHBTC":  quote("ETHBTC", "0.06890", "0.06895"),
		}
	}
	return types.TickerSnapshot{
		"BTCUSDT": quote("BTCUSDT", "30000.00", "30001.00"),
		"ETHUSDT": quote("ETHUSDT", "2070.00", "2071.00"),
		"ETHBTC":  quote("ETHBTC", "0.06900", "0.06910"),
	}
}
