// Package turn wires one chat turn end to end: prompt assembly, the
// tool-use loop, block parsing of the final assistant text, and routing
// each parsed artifact (kb-update, decision, gap-flag, stop,
// advisory-<type>) to its store.
package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quiet-coder-io/domainos/internal/advisory"
	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/blocks"
	"github.com/quiet-coder-io/domainos/internal/domainstatus"
	"github.com/quiet-coder-io/domainos/internal/kb"
	"github.com/quiet-coder-io/domainos/internal/llm"
	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/prompt"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// Service executes one chat turn for a domain: it persists the user
// message, assembles the system prompt (identity + tiered KB excerpts +
// sibling digests + status briefing), drives the tool-use loop, parses the
// final assistant text for structured blocks, and routes every accepted
// artifact to its owning store table plus an audit entry.
type Service struct {
	Store    *store.Store
	Loop     *agentrt.Loop
	KBApply  *kb.Applier
	Advisory *advisory.Repository
	Status   *domainstatus.Builder
	Tools    []agentrt.ToolSchema
	Now      func() time.Time

	// StatusIntent classifies whether a user message is asking about the
	// domain's current status; pluggable so hosts can swap in their own
	// classifier. Nil falls back to DefaultStatusIntent.
	StatusIntent func(string) bool
}

// DefaultStatusIntent is a keyword heuristic for status-seeking messages
// ("what's overdue", "status update", "where do we stand").
func DefaultStatusIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"status", "overdue", "deadline", "where do we stand", "what's pending", "whats pending", "catch me up"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *Service) statusIntent(text string) bool {
	if s.StatusIntent != nil {
		return s.StatusIntent(text)
	}
	return DefaultStatusIntent(text)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Result summarizes everything a turn produced, for telemetry and UI
// annotation; rejections carry suggestedFix guidance.
type Result struct {
	AssistantText      string
	StatusRequested    bool
	ToolRan            bool
	Capability         agentrt.Capability
	AppliedKBFiles     []kb.AppliedFile
	RejectedKBUpdates  []blocks.RejectedKBUpdate
	Decisions          []store.Decision
	RejectedDecisions  []blocks.RejectedDecision
	GapFlags           []store.GapFlag
	AdvisoryResults    []advisory.CreateResult
	RejectedAdvisories []blocks.RejectedAdvisory
	SystemNotes        []string
	Stopped            bool
	StopReason         string
}

// Input is everything Run needs for one turn.
type Input struct {
	Domain           store.Domain
	SessionID        string
	UserText         string
	Protocols        []store.Protocol
	SharedProtocols  []store.SharedProtocol
	KBExcerpts       []prompt.KBExcerpt
	SiblingDigests   []prompt.SiblingDigest
	AdvisoryProtocol string
	ProviderName     string
	Model            string
	BaseURL          string
	HistoryLimit     int
	LatestSession    *domainstatus.Session
}

// trimHistoryToBudget drops the oldest history entries until the estimated
// token total (chars/4) of system prompt plus history fits within half the
// model's context window, leaving the rest of the window for tool rounds and
// the reply. The rolling conversation summary carries what trimming drops.
func trimHistoryToBudget(history []agentrt.Transcript, systemPrompt, model string) []agentrt.Transcript {
	window, _ := llm.ContextSize(model)
	budget := window / 2
	total := len(systemPrompt) / 4
	for _, m := range history {
		total += len(m.Content) / 4
	}
	for len(history) > 0 && total > budget {
		total -= len(history[0].Content) / 4
		history = history[1:]
	}
	return history
}

// Run executes one user turn.
func (s *Service) Run(ctx context.Context, in Input) (Result, error) {
	if _, err := s.Store.AppendChatMessage(ctx, store.ChatMessage{
		DomainID: in.Domain.ID,
		Role:     "user",
		Content:  in.UserText,
	}); err != nil {
		return Result{}, fmt.Errorf("turn: persist user message: %w", err)
	}

	historyLimit := in.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 40
	}
	priorMessages, err := s.Store.RecentChatMessages(ctx, in.Domain.ID, historyLimit)
	if err != nil {
		return Result{}, fmt.Errorf("turn: load history: %w", err)
	}
	history := make([]agentrt.Transcript, 0, len(priorMessages))
	for _, m := range priorMessages {
		if m.Content == in.UserText && m.Role == "user" {
			// the just-appended message is re-added by Loop.Run from
			// in.UserText; skip its stored copy to avoid duplication.
			continue
		}
		role := agentrt.RoleUser
		if m.Role == "assistant" {
			role = agentrt.RoleAssistant
		}
		history = append(history, agentrt.Transcript{Role: role, Content: m.Content, DerivedText: m.Content})
	}

	var statusSnapshot *domainstatus.Snapshot
	if s.Status != nil {
		snap, err := s.Status.Build(ctx, in.Domain.ID, s.now(), in.LatestSession)
		if err == nil {
			statusSnapshot = &snap
		}
	}

	summary, err := s.Store.GetConversationSummary(ctx, in.Domain.ID)
	if err != nil && err != store.ErrNotFound {
		return Result{}, fmt.Errorf("turn: load conversation summary: %w", err)
	}

	systemPrompt := prompt.BuildSystemPrompt(prompt.SystemPromptInput{
		Domain:              in.Domain,
		Protocols:           in.Protocols,
		SharedProtocols:     in.SharedProtocols,
		ConversationSummary: summary.SummaryText,
		KBExcerpts:          in.KBExcerpts,
		SiblingDigests:      in.SiblingDigests,
		Status:              statusSnapshot,
		AdvisoryProtocol:    in.AdvisoryProtocol,
	})

	history = trimHistoryToBudget(history, systemPrompt, in.Model)

	turnResult, err := s.Loop.Run(ctx, agentrt.TurnInput{
		DomainID:         in.Domain.ID,
		ProviderName:     in.ProviderName,
		Model:            in.Model,
		BaseURL:          in.BaseURL,
		ForceToolAttempt: in.Domain.ForceToolAttempt,
		History:          history,
		UserText:         in.UserText,
		SystemPrompt:     systemPrompt,
		Tools:            s.Tools,
	})
	if err != nil {
		return Result{}, fmt.Errorf("turn: tool loop: %w", err)
	}

	if _, err := s.Store.AppendChatMessage(ctx, store.ChatMessage{
		DomainID: in.Domain.ID,
		Role:     "assistant",
		Content:  turnResult.FinalText,
	}); err != nil {
		return Result{}, fmt.Errorf("turn: persist assistant message: %w", err)
	}

	res := Result{
		AssistantText:   turnResult.FinalText,
		StatusRequested: s.statusIntent(in.UserText),
		ToolRan:         turnResult.ToolRan,
		Capability:      turnResult.Capability,
	}

	// Block parsers run only on the final assistant text.
	text := turnResult.FinalText

	kbResult := blocks.ParseKBUpdates(text)
	res.RejectedKBUpdates = kbResult.RejectedProposals
	if s.KBApply != nil {
		applied, applyErr := s.KBApply.ApplyAll(ctx, in.Domain, kbResult.Proposals, "agent", "chat", "kb_update", in.SessionID)
		res.AppliedKBFiles = applied
		if applyErr != nil {
			res.SystemNotes = append(res.SystemNotes, fmt.Sprintf("kb-update apply stopped early: %v", applyErr))
		}
	}

	decisionResult := blocks.ParseDecisions(text)
	res.RejectedDecisions = decisionResult.Rejected
	for _, d := range decisionResult.Decisions {
		row, err := s.Store.InsertDecision(ctx, store.Decision{
			DomainID:           in.Domain.ID,
			SessionID:          in.SessionID,
			DecisionID:         d.DecisionID,
			Decision:           d.Decision,
			Rationale:          d.Rationale,
			Downside:           d.Downside,
			RevisitTrigger:     d.RevisitTrigger,
			LinkedFiles:        d.LinkedFiles,
			Confidence:         d.Confidence,
			Horizon:            d.Horizon,
			ReversibilityClass: d.ReversibilityClass,
			Category:           d.Category,
			Authority:          d.Authority,
		})
		if err != nil {
			res.SystemNotes = append(res.SystemNotes, fmt.Sprintf("decision %s: insert failed: %v", d.DecisionID, err))
			continue
		}
		res.Decisions = append(res.Decisions, row)
	}

	gapResult := blocks.ParseGapFlags(text)
	for _, g := range gapResult.GapFlags {
		row, err := s.Store.InsertGapFlag(ctx, store.GapFlag{
			DomainID:      in.Domain.ID,
			SessionID:     in.SessionID,
			Category:      g.Category,
			Description:   g.Description,
			SourceMessage: in.UserText,
		})
		if err != nil {
			res.SystemNotes = append(res.SystemNotes, fmt.Sprintf("gap-flag insert failed: %v", err))
			continue
		}
		res.GapFlags = append(res.GapFlags, row)
	}

	stopResult := blocks.ParseStops(text)
	if len(stopResult.Stops) > 0 {
		last := stopResult.Stops[len(stopResult.Stops)-1]
		res.Stopped = true
		res.StopReason = last.Reason
	}

	if s.Advisory != nil {
		advResult := blocks.ParseAdvisoryBlocks(text)
		res.RejectedAdvisories = advResult.Rejected
		for _, c := range advResult.Selected {
			if c.Persist == "no" {
				continue // non-persistable; already captured in DraftBlocks for UI "1-click save"
			}
			created, err := s.Advisory.Create(ctx, in.Domain.ID, in.SessionID, c, s.now())
			if err != nil {
				res.SystemNotes = append(res.SystemNotes, fmt.Sprintf("advisory %s: create failed: %v", c.Title, err))
				continue
			}
			if created.RateLimited {
				res.RejectedAdvisories = append(res.RejectedAdvisories, blocks.RejectedAdvisory{
					RejectionReason: created.LimitReason,
					Detail:          c.Title,
					RawExcerpt:      blocks.Excerpt(c.RawBody),
				})
				res.SystemNotes = append(res.SystemNotes, created.FailureMessage)
				continue
			}
			res.AdvisoryResults = append(res.AdvisoryResults, created)
		}
	}

	if len(kbResult.Proposals) > 0 || len(res.Decisions) > 0 || len(res.GapFlags) > 0 {
		if _, _, err := s.Store.InsertAuditEntry(ctx, store.AuditEntry{
			DomainID:          in.Domain.ID,
			SessionID:         in.SessionID,
			AgentName:         "agent",
			FilePath:          "",
			ChangeDescription: "chat turn produced structured artifacts",
			ContentHash:       normalize.ShortHash(text, 16),
			EventType:         "chat_turn",
			Source:            "chat",
		}); err != nil {
			res.SystemNotes = append(res.SystemNotes, fmt.Sprintf("audit insert failed: %v", err))
		}
	}

	return res, nil
}
