package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/caarlos0/env/v11"
	cmdbind "github.com/nlstn/go-cmdbind"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type config struct {
	Addr        string `env:"CMDBIND_ADDR" envDefault:":8080"`
	JWTSecret   string `env:"CMDBIND_JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer   string `env:"CMDBIND_JWT_ISSUER"`
	PostgresDSN string `env:"CMDBIND_POSTGRES_DSN"`
	MySQLDSN    string `env:"CMDBIND_MYSQL_DSN"`
}

// openAuditDB picks the audit database from the environment. SQLite in
// memory is the default for local development.
func openAuditDB(cfg config) (*gorm.DB, string, error) {
	switch {
	case cfg.PostgresDSN != "":
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		return db, "postgres", err
	case cfg.MySQLDSN != "":
		db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
		return db, "mysql", err
	default:
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		return db, "sqlite (in-memory)", err
	}
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal("Failed to parse environment:", err)
	}

	db, dialect, err := openAuditDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to audit database:", err)
	}

	service := cmdbind.NewService()
	service.MustRegisterCommand(&PingCommand{})
	service.MustRegisterCommand(&CreateOrderCommand{})
	service.MustRegisterCommand(&CancelOrderCommand{})

	if err := service.RegisterEndpoint("/commands", nil); err != nil {
		log.Fatal("Failed to register endpoint:", err)
	}
	if err := service.RegisterEndpoint("/orders", orderHandler,
		cmdbind.WithFamily(cmdbind.FamilyOf[OrderCommand]())); err != nil {
		log.Fatal("Failed to register endpoint:", err)
	}

	if err := service.EnableObservability(
		cmdbind.WithServiceName("cmdbind-devserver"),
		cmdbind.WithServerTiming(),
		cmdbind.WithAuditDBTracing(),
	); err != nil {
		log.Fatal("Failed to enable observability:", err)
	}
	if err := service.EnableAudit(db); err != nil {
		log.Fatal("Failed to enable auditing:", err)
	}

	secret := []byte(cfg.JWTSecret)
	tokenOpts := []cmdbind.TokenOption{}
	if cfg.JWTIssuer != "" {
		tokenOpts = append(tokenOpts, cmdbind.WithIssuer(cfg.JWTIssuer))
	}
	parser, err := cmdbind.NewTokenParser(secret, tokenOpts...)
	if err != nil {
		log.Fatal("Failed to create token parser:", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/commands", service.Handler(parser))
	mux.Handle("/orders", service.Handler(parser))
	mux.HandleFunc("/audit/recent", auditHandler(service))

	fmt.Printf("Audit database: %s\n", dialect)
	fmt.Println("Command endpoints:")
	fmt.Println("  POST http://localhost:8080/commands  (body: {\"$command\": \"ping\", \"message\": \"hi\"})")
	fmt.Println("  POST http://localhost:8080/orders    (body: {\"$command\": \"orders.create\", \"sku\": \"A-1\", \"quantity\": 2, \"amount\": \"19.99\"})")
	fmt.Println("  POST http://localhost:8080/orders    (body: {\"$command\": \"orders.cancel\", \"orderId\": \"o-42\"})")
	fmt.Println("  GET  http://localhost:8080/audit/recent")
	fmt.Println()
	printSampleTokens(secret, cfg.JWTIssuer)

	fmt.Printf("Starting command service on %s\n", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatal("Server failed:", err)
	}
}

// orderHandler acknowledges accepted order commands with their decoded
// payload.
func orderHandler(w http.ResponseWriter, r *http.Request, b *cmdbind.Binding) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"command": b.Metadata.CommandName,
		"caller":  b.Identity.Name,
		"payload": b.Command,
	}); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// auditHandler exposes the most recent audit records for inspection during
// development.
func auditHandler(service *cmdbind.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := service.RecentAuditRecords(r.Context(), 25)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			log.Printf("Failed to write response: %v", err)
		}
	}
}
