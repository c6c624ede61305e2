package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webos_remote/internal/api"
	"webos_remote/internal/config"
	"webos_remote/internal/device"
	"webos_remote/internal/discovery"
	"webos_remote/internal/mqtt"
	"webos_remote/internal/webos"
	"webos_remote/internal/websocket"
)

func main() {
	cfg := config.Load()

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		log.Fatalf("Invalid TV configuration: %v", err)
	}
	session := webos.NewClient(sessionCfg)

	// Discovery
	lock := &discovery.RefLock{}
	discoveryOpts := cfg.DiscoveryOptions()
	discoveryOpts.Lock = lock
	discoverer := discovery.NewClient(discoveryOpts)
	if len(cfg.KnownTVs) > 0 {
		log.Printf("Discovery seeded with %d known TV(s)", len(cfg.KnownTVs))
	}

	statePayload := func(state device.ConnectionState) websocket.StatePayload {
		payload := websocket.StatePayload{
			State:     state,
			LastError: session.LastError(),
		}
		if tv := session.Target(); tv.IPAddress != "" {
			payload.Device = &tv
		}
		return payload
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(func() []websocket.Event {
		return []websocket.Event{{Type: websocket.EventState, Payload: statePayload(session.State())}}
	})
	go wsHub.Run()
	log.Println("WebSocket hub started")

	// Initialize MQTT bridge
	var mqttClient *mqtt.Client
	if mqttCfg, ok := cfg.MQTTConfig(); ok {
		mqttClient = mqtt.NewClient(mqttCfg, session)
		go func() {
			if err := mqttClient.Connect(); err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			}
		}()
		log.Printf("MQTT client connecting to %s:%d", mqttCfg.Host, mqttCfg.Port)
	}

	unsubscribe := session.Subscribe(func(state device.ConnectionState) {
		// Report the transition being delivered, not a later one
		wsHub.BroadcastState(statePayload(state))
		if mqttClient != nil {
			mqttClient.PublishState(state, session.LastError())
		}
	})

	server := api.NewServer(session, discoverer, api.Options{
		Discovering: lock.Held,
		OnDevices: func(devices []device.DiscoveredDevice) {
			wsHub.BroadcastDevices(devices)
			if mqttClient != nil {
				mqttClient.PublishDevices(devices)
			}
		},
		WebSocket: http.HandlerFunc(wsHub.ServeWS),
	})

	if cfg.TVAutoConnect {
		go autoConnect(context.Background(), cfg, session, discoverer, server)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	unsubscribe()
	session.Close()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
}

// autoConnect connects to TV_IP, or to the first TV discovery finds
func autoConnect(ctx context.Context, cfg config.Config, session *webos.Client, discoverer *discovery.Client, server *api.Server) {
	tv, ok := cfg.ManualTV()
	if !ok {
		devices := discoverer.Collect(ctx)
		server.SetDevices(devices)
		if len(devices) == 0 {
			log.Println("Auto-connect: no TV found on the network")
			return
		}
		tv = devices[0].TVDevice()
		log.Printf("Auto-connect: using discovered TV %s (%s)", tv.Name, tv.Address())
	}
	if err := session.Connect(ctx, tv); err != nil {
		log.Printf("Warning: Auto-connect to %s failed: %v", tv.Address(), err)
	}
}
