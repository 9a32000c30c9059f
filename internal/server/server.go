/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kentakayama/trust-anchor/internal/anchor"
	"github.com/kentakayama/trust-anchor/internal/config"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/infra/sqlite"
	"github.com/kentakayama/trust-anchor/internal/journal"
	"github.com/kentakayama/trust-anchor/internal/metrics"
	"golang.org/x/mod/sumdb/note"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.AnchorConfig
	handler *handler
	http    *http.Server
	db      *sql.DB
	logger  *log.Logger
}

// New opens the trust store, the journal and the engine described by cfg.
// The owner is taken from the COSE key at cfg.OwnerKeyPath; a database that
// already belongs to another owner is refused.
func New(ctx context.Context, cfg config.AnchorConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ownerKey, err := config.LoadCOSEKey(cfg.OwnerKeyPath)
	if err != nil {
		return nil, err
	}
	ownerPub, err := anchor.PublicKey(ownerKey)
	if err != nil {
		return nil, fmt.Errorf("owner key: %w", err)
	}
	owner, err := anchor.IdentityOf(ownerPub)
	if err != nil {
		return nil, fmt.Errorf("owner key: %w", err)
	}

	signer, err := journalSigner(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	srv, err := build(ctx, cfg, db, owner, signer, logger)
	if err != nil {
		sqlite.CloseDB(db)
		return nil, err
	}
	return srv, nil
}

func build(ctx context.Context, cfg config.AnchorConfig, db *sql.DB, owner model.Identity, signer note.Signer, logger *log.Logger) (*Server, error) {
	store, err := sqlite.NewTrustStoreRepository(ctx, db, owner)
	if err != nil {
		return nil, err
	}
	j, err := journal.New(ctx, sqlite.NewEventRepository(db), cfg.JournalOrigin, signer, logger)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	engine, err := anchor.NewEngine(ctx, store, logger,
		anchor.WithRecorder(j),
		anchor.WithObserver(m),
	)
	if err != nil {
		return nil, err
	}

	h := newHandler(engine, j, m, cfg.DebugCBOR, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Printf("trust anchor owned by %s", owner)
	return &Server{
		cfg:     cfg,
		handler: h,
		http:    httpSrv,
		db:      db,
		logger:  logger,
	}, nil
}

// journalSigner loads the checkpoint key, or makes a throwaway one whose
// verifier key is logged so checkpoints can still be checked.
func journalSigner(cfg config.AnchorConfig, logger *log.Logger) (note.Signer, error) {
	if cfg.JournalNoteKeyPath != "" {
		return config.LoadNoteSigner(cfg.JournalNoteKeyPath)
	}
	skey, vkey, err := note.GenerateKey(rand.Reader, cfg.JournalOrigin)
	if err != nil {
		return nil, fmt.Errorf("generate journal key: %w", err)
	}
	logger.Printf("no journal key configured, using ephemeral key %s", vkey)
	return note.NewSigner(skey)
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Run Trust Anchor Server on %s.", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler exposes the request handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Shutdown gracefully takes down the HTTP server and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	return errors.Join(err, sqlite.CloseDB(s.db))
}
