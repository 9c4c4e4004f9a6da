package mission

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quiet-coder-io/domainos/internal/blocks"
	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/portfolio"
	"github.com/quiet-coder-io/domainos/internal/prompt"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// PortfolioBriefingMissionType is the registered Definition.Type for the
// periodic portfolio-wide briefing mission.
const PortfolioBriefingMissionType = "portfolio_briefing"

// CreateDeadlineActionType is the gated action a parsed briefing-action
// block maps onto: creating a Deadline row once the user approves it.
const CreateDeadlineActionType = "create_deadline"

// NewPortfolioBriefingDefinition builds the default portfolio-briefing
// mission: it assembles cross-domain health + per-domain kb_digest.md
// text, renders the briefing prompt, streams a completion,
// parses the three briefing-* block families, and gates
// each briefing-action item behind approval before creating a Deadline.
func NewPortfolioBriefingDefinition(st *store.Store, budget int) Definition {
	if budget <= 0 {
		budget = portfolio.DefaultTokenBudget
	}
	return Definition{
		Type: PortfolioBriefingMissionType,
		ValidateInputs: func(inputs map[string]any) (map[string]any, error) {
			if inputs == nil {
				inputs = map[string]any{}
			}
			return inputs, nil
		},
		RequiresGate: func(items []ParsedItem) bool { return len(items) > 0 },
		BuildContext: buildBriefingContext(st),
		BuildPrompt:  buildBriefingPrompt(budget),
		ParseOutput:  parseBriefingOutput,
		Actions: map[string]ActionExecutor{
			CreateDeadlineActionType: createDeadlineAction(st),
		},
	}
}

func buildBriefingContext(st *store.Store) func(context.Context, store.Domain, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, _ store.Domain, _ map[string]any) (map[string]any, error) {
		now := timeNow().UTC()

		snap, err := portfolio.NewBuilder(st).Build(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("build portfolio snapshot: %w", err)
		}

		domains, err := st.ListDomains(ctx)
		if err != nil {
			return nil, fmt.Errorf("list domains: %w", err)
		}

		statusByID := make(map[string]portfolio.DomainStatusValue, len(snap.Domains))
		for _, d := range snap.Domains {
			statusByID[d.DomainID] = d.Status
		}

		digests := make([]portfolio.DomainDigest, 0, len(domains))
		for _, d := range domains {
			text, missing := readKBDigest(d.KBPath)
			digests = append(digests, portfolio.DomainDigest{
				DomainID: d.ID,
				Status:   statusByID[d.ID],
				Text:     text,
				Missing:  missing,
			})
		}

		return map[string]any{
			"portfolio": snap,
			"digests":   digests,
			"now":       now,
		}, nil
	}
}

func resolveDomainByName(ctx context.Context, st *store.Store, name string) (store.Domain, error) {
	domains, err := st.ListDomains(ctx)
	if err != nil {
		return store.Domain{}, err
	}
	for _, d := range domains {
		if d.Name == name {
			return d, nil
		}
	}
	return store.Domain{}, fmt.Errorf("no domain named %q", name)
}

// readKBDigest reads the sibling kb_digest.md from a domain's KB root,
// read-only, returning the missing placeholder when absent.
func readKBDigest(kbPath string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(kbPath, "kb_digest.md"))
	if err != nil {
		return "", true
	}
	return string(data), false
}

func buildBriefingPrompt(budget int) func(store.Domain, map[string]any, map[string]any) (string, string, error) {
	return func(_ store.Domain, _ map[string]any, missionContext map[string]any) (string, string, error) {
		snap, ok := missionContext["portfolio"].(portfolio.Snapshot)
		if !ok {
			return "", "", fmt.Errorf("briefing context missing portfolio snapshot")
		}
		digests, _ := missionContext["digests"].([]portfolio.DomainDigest)
		now, _ := missionContext["now"].(time.Time)
		if now.IsZero() {
			now = timeNow().UTC()
		}

		compressed := portfolio.CompressDigests(digests, budget)

		userPrompt := prompt.BuildBriefingPrompt(prompt.BriefingPromptInput{
			Now:         now,
			Domains:     snap.Domains,
			Alerts:      snap.Alerts,
			Digests:     compressed,
			TokenBudget: budget,
			DescribeFunc: func(h portfolio.DomainHealth) string {
				return fmt.Sprintf("%s: %d overdue, %d open gaps", h.DomainName, h.OverdueDeadlines, h.OpenGapFlags)
			},
		})

		return briefingSystemPrompt, userPrompt, nil
	}
}

const briefingSystemPrompt = `You are the DomainOS portfolio briefing agent. Using only the ground truth ` +
	`and computed alerts below, emit briefing-alert, briefing-action, and briefing-monitor fenced blocks ` +
	`summarizing what needs attention across every domain. Never dismiss or downgrade a computed alert.`

// parseBriefingOutput implements mission.Definition.ParseOutput for the
// briefing mission type: each parsed briefing-action item becomes a gated
// create_deadline ParsedItem; alerts and monitors
// are informational and already embedded in the persisted raw output, so
// they produce no action rows.
func parseBriefingOutput(rawOutput string) ([]ParsedItem, error) {
	res := blocks.ParseBriefingBlocks(rawOutput)
	items := make([]ParsedItem, 0, len(res.Actions))
	for i, a := range res.Actions {
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal briefing action %d: %w", i, err)
		}
		items = append(items, ParsedItem{
			ActionID:      fmt.Sprintf("briefing-action-%d", i),
			ActionType:    CreateDeadlineActionType,
			ActionPayload: string(payload),
		})
	}
	return items, nil
}

func createDeadlineAction(st *store.Store) ActionExecutor {
	return ActionExecutorFunc(func(ctx context.Context, domain store.Domain, action store.MissionAction) (string, error) {
		var a blocks.BriefingAction
		if err := json.Unmarshal([]byte(action.ActionPayload), &a); err != nil {
			return "", fmt.Errorf("unmarshal briefing action payload: %w", err)
		}
		// A briefing-action block names its own target domain; the
		// portfolio-briefing mission runs unscoped, so resolve it here
		// rather than using the Runner's per-call `domain` argument.
		if a.Domain != "" {
			if d, err := resolveDomainByName(ctx, st, a.Domain); err == nil {
				domain = d
			}
		}
		due := a.Deadline
		if due == "" || due == "none" {
			due = normalize.FormatISODate(timeNow().UTC())
		}
		dueDate, err := normalize.ParseISODate(due)
		if err != nil {
			return "", fmt.Errorf("invalid deadline date %q: %w", due, err)
		}
		d, err := st.InsertDeadline(ctx, store.Deadline{
			DomainID: domain.ID,
			Text:     a.Text,
			DueDate:  dueDate,
			Priority: a.Priority,
			Status:   "active",
			Source:   "briefing",
		})
		if err != nil {
			return "", fmt.Errorf("insert deadline: %w", err)
		}
		return fmt.Sprintf("created deadline %s", d.ID), nil
	})
}
