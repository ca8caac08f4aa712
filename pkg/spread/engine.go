// Package spread renders financial spreads from the fact store. Templates are
// pure: given the same fact set they always produce the same table, and every
// computed cell carries references to the facts that produced it.
package spread

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Template renders one spread type from a deal's facts.
type Template interface {
	Type() models.SpreadType
	Render(facts []models.FinancialFact) (*models.SpreadContent, error)
}

// Result is the terminal outcome of a render. A missing template or a
// template failure produces an error-status result, never a panic, so the job
// machinery can always record something.
type Result struct {
	Status       models.SpreadStatus
	Content      *models.SpreadContent
	ErrorMessage *string
}

// Engine dispatches renders to registered templates.
type Engine struct {
	templates map[models.SpreadType]Template
	logger    *zap.Logger
}

// NewEmptyEngine creates an engine with no templates registered.
func NewEmptyEngine(logger *zap.Logger) *Engine {
	return &Engine{
		templates: make(map[models.SpreadType]Template),
		logger:    logger.Named("spread"),
	}
}

// NewEngine creates an engine with the full default template set registered.
func NewEngine(logger *zap.Logger) *Engine {
	e := NewEmptyEngine(logger)
	e.Register(&T12Template{})
	e.Register(&RentRollTemplate{})
	e.Register(&BalanceSheetTemplate{})
	e.Register(&GlobalCashFlowTemplate{})
	e.Register(&PersonalIncomeTemplate{})
	e.Register(&PFSTemplate{})
	return e
}

// Register adds a template to the registry, replacing any existing one for
// the same type.
func (e *Engine) Register(t Template) {
	e.templates[t.Type()] = t
}

// HasTemplate reports whether a template is registered for the given type.
func (e *Engine) HasTemplate(t models.SpreadType) bool {
	_, ok := e.templates[t]
	return ok
}

// RegisteredTypes returns the types with a registered template, in canonical
// order.
func (e *Engine) RegisteredTypes() []models.SpreadType {
	types := make([]models.SpreadType, 0, len(e.templates))
	for _, t := range models.AllSpreadTypes {
		if e.HasTemplate(t) {
			types = append(types, t)
		}
	}
	return types
}

// Render renders the requested spread type from the given facts.
func (e *Engine) Render(spreadType models.SpreadType, facts []models.FinancialFact) Result {
	tmpl, ok := e.templates[spreadType]
	if !ok {
		msg := fmt.Sprintf("no template registered for spread type %s", spreadType)
		e.logger.Warn("render requested for unregistered spread type",
			zap.String("spread_type", spreadType.String()))
		return Result{Status: models.SpreadStatusError, ErrorMessage: &msg}
	}

	content, err := tmpl.Render(facts)
	if err != nil {
		msg := fmt.Sprintf("render failed: %v", err)
		e.logger.Error("template render failed",
			zap.String("spread_type", spreadType.String()),
			zap.Error(err))
		return Result{Status: models.SpreadStatusError, ErrorMessage: &msg}
	}

	return Result{Status: models.SpreadStatusReady, Content: content}
}
