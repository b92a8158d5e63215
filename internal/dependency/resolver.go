// Package dependency implements the Dependency Resolver (C14): building a
// DAG over a validated subtask batch from three merged edge-detection
// strategies, breaking any cycles, and decomposing the DAG into
// topological execution levels.
package dependency

import (
	"sort"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// criticalEntityTypes are the entity keys whose shared value across two
// subtasks implies an ordering requirement (spec §4.13 "shared
// entities").
var criticalEntityTypes = []string{"location", "user", "resource", "file", "session"}

// actionPrecedence ranks action categories from spec §4.13's table:
// authenticate/verify -> read/query -> process/create -> modify/send ->
// notify. Category membership is derived from keyword tokens in the
// action_id since this domain has no separate action-category field.
var actionPrecedence = []struct {
	rank     int
	keywords []string
}{
	{0, []string{"authenticate", "verify", "autenticar", "verificar"}},
	{1, []string{"read", "query", "consultar", "obtener", "get"}},
	{2, []string{"process", "create", "crear", "procesar", "programar"}},
	{3, []string{"modify", "update", "send", "enviar", "modificar", "encender", "apagar"}},
	{4, []string{"notify", "notificar", "avisar"}},
}

func precedenceRank(actionID string) int {
	lower := strings.ToLower(actionID)
	for _, cat := range actionPrecedence {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.rank
			}
		}
	}
	return 2 // unclassified actions sort as "process/create", the middle tier
}

// Config controls C14's behavior (spec §6 dependency.* keys).
type Config struct {
	// ActionPairs declares explicit must-precede relationships:
	// ActionPairs["consultar_tiempo"] = []string{"programar_alarma_condicional"}
	// means any subtask invoking consultar_tiempo must complete before any
	// subtask in the same batch invoking programar_alarma_condicional.
	ActionPairs map[string][]string
	// SemanticConnectors are description phrases that signal a subtask
	// depends on whatever subtask's action is referenced in its own text,
	// e.g. "si llueve" referencing a weather-check subtask.
	SemanticConnectors []string
}

type edge struct {
	from       string
	to         string
	confidence float64
}

// Resolver builds and resolves the dependency DAG.
type Resolver struct {
	cfg Config
}

// New constructs a Resolver.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve builds the dependency graph over subtasks, breaks any cycles by
// repeatedly dropping the lowest-confidence edge in a detected cycle, and
// returns an ExecutionPlan whose levels are computed via Kahn's
// algorithm, each level ordered by priority then descending confidence.
func (r *Resolver) Resolve(subtasks []*models.Subtask) *models.ExecutionPlan {
	edges := r.detectEdges(subtasks)
	edges = breakCycles(subtasks, edges)
	applyDependencies(subtasks, edges)
	levels := topologicalLevels(subtasks)
	return models.NewExecutionPlan(levels)
}

func (r *Resolver) detectEdges(subtasks []*models.Subtask) []edge {
	var edges []edge
	edges = append(edges, r.actionPairEdges(subtasks)...)
	edges = append(edges, r.semanticEdges(subtasks)...)
	edges = append(edges, r.sharedEntityEdges(subtasks)...)
	return mergeEdges(edges)
}

func (r *Resolver) actionPairEdges(subtasks []*models.Subtask) []edge {
	var edges []edge
	for _, from := range subtasks {
		successors, ok := r.cfg.ActionPairs[from.ActionID]
		if !ok {
			continue
		}
		for _, to := range subtasks {
			if to.SubtaskID == from.SubtaskID {
				continue
			}
			if containsStr(successors, to.ActionID) {
				edges = append(edges, edge{from: from.SubtaskID, to: to.SubtaskID, confidence: 1.0})
			}
		}
	}
	return edges
}

// semanticEdges detects a dependency when one subtask's description
// mentions another subtask's action keywords, e.g. "si llueve" in a
// "programar_alarma_condicional" subtask referencing a prior
// "consultar_tiempo" subtask about rain/weather.
func (r *Resolver) semanticEdges(subtasks []*models.Subtask) []edge {
	var edges []edge
	for _, to := range subtasks {
		lowerDesc := strings.ToLower(to.Description)
		hasConnector := false
		for _, c := range r.cfg.SemanticConnectors {
			if strings.Contains(lowerDesc, strings.ToLower(c)) {
				hasConnector = true
				break
			}
		}
		if !hasConnector {
			continue
		}
		for _, from := range subtasks {
			if from.SubtaskID == to.SubtaskID {
				continue
			}
			for _, token := range strings.Split(from.ActionID, "_") {
				if token == "" {
					continue
				}
				if strings.Contains(lowerDesc, strings.ToLower(token)) {
					edges = append(edges, edge{from: from.SubtaskID, to: to.SubtaskID, confidence: 0.7})
					break
				}
			}
		}
	}
	return edges
}

// sharedEntityEdges orders two subtasks that share a critical entity
// value by the action-precedence table.
func (r *Resolver) sharedEntityEdges(subtasks []*models.Subtask) []edge {
	var edges []edge
	for i, a := range subtasks {
		for j, b := range subtasks {
			if i == j {
				continue
			}
			if !shareCriticalEntity(a, b) {
				continue
			}
			rankA := precedenceRank(a.ActionID)
			rankB := precedenceRank(b.ActionID)
			if rankA < rankB {
				edges = append(edges, edge{from: a.SubtaskID, to: b.SubtaskID, confidence: 0.6})
			}
		}
	}
	return edges
}

func shareCriticalEntity(a, b *models.Subtask) bool {
	for _, entityType := range criticalEntityTypes {
		av, aok := a.Entities[entityType]
		bv, bok := b.Entities[entityType]
		if aok && bok && av != "" && av == bv {
			return true
		}
	}
	return false
}

func mergeEdges(edges []edge) []edge {
	best := make(map[[2]string]float64)
	for _, e := range edges {
		key := [2]string{e.from, e.to}
		if existing, ok := best[key]; !ok || e.confidence > existing {
			best[key] = e.confidence
		}
	}
	out := make([]edge, 0, len(best))
	for k, conf := range best {
		out = append(out, edge{from: k[0], to: k[1], confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

func containsStr(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// breakCycles repeatedly finds a cycle via DFS and removes its
// lowest-confidence edge until the graph is acyclic.
func breakCycles(subtasks []*models.Subtask, edges []edge) []edge {
	for {
		cycle := findCycle(subtasks, edges)
		if cycle == nil {
			return edges
		}
		weakest := cycle[0]
		for _, e := range cycle[1:] {
			if e.confidence < weakest.confidence {
				weakest = e
			}
		}
		edges = removeEdge(edges, weakest)
	}
}

func removeEdge(edges []edge, target edge) []edge {
	out := make([]edge, 0, len(edges))
	removed := false
	for _, e := range edges {
		if !removed && e.from == target.from && e.to == target.to {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out
}

// findCycle returns the edges forming one cycle in the graph, or nil if
// the graph is acyclic.
func findCycle(subtasks []*models.Subtask, edges []edge) []edge {
	adj := make(map[string][]edge)
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(subtasks))
	for _, st := range subtasks {
		color[st.SubtaskID] = white
	}

	var path []edge
	var cycle []edge

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, e := range adj[node] {
			if color[e.to] == gray {
				// found the back edge closing the cycle; walk path back to e.to
				cycle = append(cycle, e)
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
					if path[i].from == e.to {
						break
					}
				}
				return true
			}
			if color[e.to] == white {
				path = append(path, e)
				if visit(e.to) {
					return true
				}
				path = path[:len(path)-1]
			}
		}
		color[node] = black
		return false
	}

	for _, st := range subtasks {
		if color[st.SubtaskID] == white {
			if visit(st.SubtaskID) {
				return cycle
			}
		}
	}
	return nil
}

// applyDependencies records the final edge set back onto each subtask's
// Dependencies field.
func applyDependencies(subtasks []*models.Subtask, edges []edge) {
	deps := make(map[string][]string)
	for _, e := range edges {
		deps[e.to] = append(deps[e.to], e.from)
	}
	for _, st := range subtasks {
		d := deps[st.SubtaskID]
		sort.Strings(d)
		st.Dependencies = d
	}
}

// topologicalLevels groups subtasks into levels via Kahn's algorithm:
// level 0 is every subtask with no remaining dependency, level 1 is
// every subtask whose dependencies are all in level 0, and so on. Within
// a level, subtasks are ordered by descending priority then descending
// confidence for a deterministic execution order.
func topologicalLevels(subtasks []*models.Subtask) []models.DependencyLevel {
	byID := make(map[string]*models.Subtask, len(subtasks))
	inDegree := make(map[string]int, len(subtasks))
	for _, st := range subtasks {
		byID[st.SubtaskID] = st
		inDegree[st.SubtaskID] = len(st.Dependencies)
	}

	successors := make(map[string][]string)
	for _, st := range subtasks {
		for _, dep := range st.Dependencies {
			successors[dep] = append(successors[dep], st.SubtaskID)
		}
	}

	var levels []models.DependencyLevel
	remaining := len(subtasks)
	processed := make(map[string]bool, len(subtasks))

	for remaining > 0 {
		var ready []*models.Subtask
		for _, st := range subtasks {
			if !processed[st.SubtaskID] && inDegree[st.SubtaskID] == 0 {
				ready = append(ready, st)
			}
		}
		if len(ready) == 0 {
			// Any remaining subtasks have an unresolved dependency outside
			// the batch (dropped by the validator, or pointing at a subtask
			// not in this plan); place them in their own final level rather
			// than dropping them from the plan silently.
			for _, st := range subtasks {
				if !processed[st.SubtaskID] {
					ready = append(ready, st)
				}
			}
		}

		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Priority != ready[j].Priority {
				return ready[i].Priority > ready[j].Priority
			}
			if ready[i].Confidence != ready[j].Confidence {
				return ready[i].Confidence > ready[j].Confidence
			}
			return ready[i].SubtaskID < ready[j].SubtaskID
		})

		levels = append(levels, models.DependencyLevel{Index: len(levels), Subtasks: ready})
		for _, st := range ready {
			processed[st.SubtaskID] = true
			remaining--
			for _, succ := range successors[st.SubtaskID] {
				inDegree[succ]--
			}
		}
	}

	return levels
}
