// Command sessiondemo drives the session lifecycle end to end against a
// running identity provider and API: adopt a credential pair, resolve
// the role, optionally impersonate a target and restore, then sign out.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gestaorh.org/internal/config"
	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/idle"
	"gestaorh.org/internal/impersonation"
	"gestaorh.org/internal/provider"
	"gestaorh.org/internal/session"
)

func main() {
	log.SetFlags(0)
	var (
		apiURL        = flag.String("api-url", "http://localhost:8080", "GestaoRH API base URL")
		access        = flag.String("access", "", "Access token to adopt")
		refresh       = flag.String("refresh", "", "Refresh token to adopt")
		target        = flag.String("impersonate", "", "Profile id to impersonate (optional)")
		justification = flag.String("justificativa", "", "Justification recorded in the audit trail")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *access == "" || *refresh == "" {
		log.Fatal("usage: sessiondemo -access <token> -refresh <token> [-impersonate <profile-id> -justificativa <text>]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	sessions := provider.NewClient(cfg.ProviderURL, cfg.ProviderAnon, cfg.CallTimeout)
	resolver := identity.NewResolver(
		identity.NewPGPlatformUsers(db),
		identity.NewPGCompanyUsers(db),
		identity.WithLookupTimeout(cfg.CallTimeout),
	)
	monitor := idle.NewMonitor(idle.WithWindow(cfg.IdleWindow))

	bearer := func() string {
		s, err := sessions.GetSession(ctx)
		if err != nil {
			return ""
		}
		return s.AccessToken
	}
	issuer := impersonation.NewFunctionsClient(*apiURL, bearer, cfg.CallTimeout)
	manager := impersonation.NewManager(impersonation.NewMemoryBackupStore(), sessions, issuer)

	ctl := session.NewController(sessions, resolver, monitor, manager,
		session.WithCallTimeout(cfg.CallTimeout),
		session.WithInitCeiling(cfg.InitCeiling),
	)
	defer ctl.Close()

	if _, err := sessions.SetSession(ctx, *access, *refresh); err != nil {
		log.Fatalf("adopt session: %v", err)
	}

	ctl.Init(ctx)
	select {
	case <-ctl.Settled():
	case <-ctx.Done():
		log.Fatal("interrupted before initialization settled")
	}
	report(ctl, "initialized")

	if *target != "" {
		if err := ctl.Impersonate(ctx, identity.ProfileID(*target), *justification); err != nil {
			log.Fatalf("impersonate: %v", err)
		}
		report(ctl, "impersonating")

		time.Sleep(time.Second)

		if err := ctl.StopImpersonation(ctx); err != nil {
			log.Fatalf("stop impersonation: %v", err)
		}
		report(ctl, "restored")
	}

	ctl.SignOut(ctx)
	report(ctl, "signed out")
}

func report(ctl *session.Controller, phase string) {
	snap := ctl.Snapshot()
	who := "anonymous"
	if snap.Principal != nil {
		who = snap.Principal.Email
	}
	role := string(snap.Role)
	if role == "" {
		role = "none"
	}
	fmt.Printf("%-14s actor=%s role=%s impersonating=%t\n", phase, who, role, snap.Impersonating)
}
