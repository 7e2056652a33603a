package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"transconecta.io/internal/healthcheck"
	"transconecta.io/internal/ids"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body, out any, want int) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s %s: %v", method, path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		log.Fatalf("request %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

type entity struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	base := strings.TrimRight(getenv("TRANSCONECTA_API_URL", "http://localhost:8080"), "/")
	email := os.Getenv("BOOTSTRAP_ADMIN_EMAIL")
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD are required")
	}

	ctx, cancel := healthcheck.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if addr := os.Getenv("TRANSCONECTA_GRPC_ADDR"); addr != "" {
		hc, err := healthcheck.Dial(grpcTarget(addr))
		if err != nil {
			log.Fatalf("dial grpc health at %s: %v", addr, err)
		}
		defer hc.Close()
		if err := hc.WaitServing(ctx, "", time.Second); err != nil {
			log.Fatalf("grpc health: %v", err)
		}
	}

	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
	c.call(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)

	var login struct {
		Token string `json:"token"`
	}
	c.call(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"email": email, "password": password}, &login, http.StatusOK)
	c.token = login.Token

	suffix := strings.ToLower(ids.New())[20:]
	var vehicle, driver, cust, route entity
	c.call(ctx, http.MethodPost, "/v1/vehicles", map[string]any{
		"plate": "SMK" + suffix, "make": "Smoke", "model": "Test", "year": 2024, "capacity": 1,
	}, &vehicle, http.StatusCreated)
	c.call(ctx, http.MethodPost, "/v1/drivers", map[string]any{
		"name": "Smoke Driver", "national_id": "SMK-" + suffix,
	}, &driver, http.StatusCreated)
	c.call(ctx, http.MethodPost, "/v1/clients", map[string]any{"name": "Smoke Client " + suffix}, &cust, http.StatusCreated)
	c.call(ctx, http.MethodPost, "/v1/routes", map[string]any{
		"origin": "A", "destination": "B", "distance_km": 1, "estimated_hours": 1, "client_id": cust.ID,
	}, &route, http.StatusCreated)

	var assigned entity
	c.call(ctx, http.MethodPost, "/v1/assignments", map[string]int64{
		"vehicle_id": vehicle.ID, "driver_id": driver.ID, "route_id": route.ID, "client_id": cust.ID,
	}, &assigned, http.StatusCreated)

	var check entity
	c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/vehicles/%d", vehicle.ID), nil, &check, http.StatusOK)
	if check.Status != "en_ruta" {
		log.Fatalf("vehicle status after assign = %q", check.Status)
	}

	c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/assignments/%d", assigned.ID), nil, nil, http.StatusOK)
	c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/drivers/%d", driver.ID), nil, &check, http.StatusOK)
	if check.Status != "activo" {
		log.Fatalf("driver status after unassign = %q", check.Status)
	}

	c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/routes/%d", route.ID), nil, nil, http.StatusNoContent)
	c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/clients/%d", cust.ID), nil, nil, http.StatusNoContent)
	c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/drivers/%d", driver.ID), nil, nil, http.StatusNoContent)
	c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/vehicles/%d", vehicle.ID), nil, nil, http.StatusNoContent)

	fmt.Printf("✅ smoke test passed against %s (vehicle=%d driver=%d)\n", base, vehicle.ID, driver.ID)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// grpcTarget turns a listen address such as ":9090" into a dialable target.
func grpcTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
