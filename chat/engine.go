package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/analytics"
	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/dialog"
	"github.com/marhaba-ai/marhaba/knowledge"
	"github.com/marhaba-ai/marhaba/nlu"
	"github.com/marhaba-ai/marhaba/rag"
	"github.com/marhaba-ai/marhaba/session"
)

// searchLimit bounds how many results a search turn renders.
const searchLimit = 5

// SessionStore is the slice of the session store the engine drives.
type SessionStore interface {
	Create(ctx context.Context, metadata map[string]any, rememberMe bool) (*session.Context, session.Credentials, error)
	Get(ctx context.Context, id string) (*session.Context, error)
	Save(ctx context.Context, c *session.Context) error
	Degraded() bool
}

// Analyzer turns one utterance into structured meaning. It never fails;
// degraded stages surface as fallback values inside the result.
type Analyzer interface {
	Analyze(ctx context.Context, text, sessionLanguage, correlationID string) nlu.Result
}

// Conversation decides the next dialog action for an analyzed turn.
type Conversation interface {
	Next(sc *session.Context, res nlu.Result) dialog.Action
}

// Catalog is the slice of the knowledge repository the engine renders from.
type Catalog interface {
	Entity(ctx context.Context, kind knowledge.Kind, id int64) (*knowledge.Entity, error)
	Find(ctx context.Context, kind knowledge.Kind, query string, filters map[string]any, limit int, language string) (knowledge.Page, error)
}

// Answerer answers open questions from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, question, language string, history []session.Turn) (rag.Answer, error)
}

// Caller invokes an external service through the hub.
type Caller interface {
	Execute(ctx context.Context, service, method string, params map[string]any) (map[string]any, error)
}

// Recorder accepts analytics events without blocking the turn.
type Recorder interface {
	Emit(event analytics.Event)
}

// Config carries the engine tunables resolved from settings.
type Config struct {
	// Deadline is the whole-turn budget. A non-positive value means the
	// budget is already spent: the turn fails with a timeout before any
	// model or store is touched.
	Deadline        time.Duration
	Languages       []string
	DefaultLanguage string
}

// Engine runs one user turn end to end: session load, language selection,
// NLU, dialog, action execution, response generation, persistence and
// analytics.
type Engine struct {
	sessions SessionStore
	analyzer Analyzer
	dialog   Conversation
	catalog  Catalog
	answerer Answerer
	services Caller
	events   Recorder
	gen      *Generator
	cfg      Config
	log      *logrus.Logger
	now      func() time.Time
}

func NewEngine(sessions SessionStore, analyzer Analyzer, conv Conversation, catalog Catalog, answerer Answerer, services Caller, events Recorder, cfg Config, log *logrus.Logger) *Engine {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{cfg.DefaultLanguage}
	}
	return &Engine{
		sessions: sessions,
		analyzer: analyzer,
		dialog:   conv,
		catalog:  catalog,
		answerer: answerer,
		services: services,
		events:   events,
		gen:      NewGenerator(cfg.DefaultLanguage),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// rendered is the outcome of executing one dialog action.
type rendered struct {
	text  string
	rtype string
	sugg  []string
	debug map[string]any
}

// HandleMessage processes one user turn. Requests that never become a turn
// (bad envelope, unreachable session store, spent budget) return a fault;
// failures after the turn has started degrade to a templated apology so the
// conversation survives. Every accepted turn emits exactly one analytics
// event, whatever its outcome.
func (e *Engine) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	started := e.now()
	cid := uuid.NewString()

	if err := req.Validate(e.cfg.Languages); err != nil {
		return nil, stamp(err, cid)
	}

	ev := analytics.Event{
		SessionID: req.SessionID,
		Outcome:   analytics.OutcomeSuccess,
	}
	defer func() {
		ev.LatencyMS = e.now().Sub(started).Milliseconds()
		ev.PrimaryStoreDegraded = e.sessions.Degraded()
		ev.At = e.now()
		e.events.Emit(ev)
	}()

	log := e.log.WithField("correlation_id", cid)

	// A spent budget fails before NLU ever runs.
	if e.cfg.Deadline <= 0 {
		ev.Outcome = analytics.OutcomeTimeout
		ev.ErrorKind = string(common.KindTimeout)
		return nil, common.NewFault(common.KindTimeout, "the request ran out of time").WithID(cid)
	}
	if err := ctx.Err(); err != nil {
		ev.Outcome = analytics.OutcomeTimeout
		ev.ErrorKind = string(common.KindTimeout)
		return nil, common.WrapFault(common.KindTimeout, "the request ran out of time", err).WithID(cid)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	sc, err := e.loadSession(ctx, req.SessionID, log)
	if err != nil {
		kind := common.KindOf(err)
		ev.Outcome, ev.ErrorKind = outcomeFor(kind), string(kind)
		return nil, stamp(err, cid)
	}
	ev.SessionID = sc.ID

	pref := req.Language
	if pref == "" {
		pref = sc.Language
	}
	res := e.analyzer.Analyze(ctx, req.Message, pref, cid)

	lang := req.Language
	if lang == "" {
		lang = res.Language
	}
	sc.Language = lang

	ev.Intent = res.Intent
	ev.Entities = entityMap(res.Entities)

	// History as it stood before this turn feeds retrieval prompts.
	prior := sc.RecentTurns(rag.DefaultHistoryTurns)

	now := e.now()
	sc.Touch(now)
	sc.AddTurn(session.Turn{
		UserText: req.Message,
		Intent:   res.Intent,
		Entities: ev.Entities,
		Language: lang,
		At:       now,
	})
	sc.Incomplete = true
	if err := e.sessions.Save(ctx, sc); err != nil {
		log.WithError(err).Warn("interim session save failed")
	}

	var out rendered
	if req.Message == "" {
		out = rendered{text: e.gen.Text(lang, "say_again", nil), rtype: TypeText}
	} else {
		act := e.dialog.Next(sc, res)
		out, err = e.perform(ctx, act, req, lang, prior)
		if err != nil {
			kind := common.KindOf(err)
			ev.Outcome, ev.ErrorKind = outcomeFor(kind), string(kind)
			log.WithError(err).WithFields(logrus.Fields{
				"flow":    sc.Dialog.FlowID,
				"node":    sc.Dialog.NodeID,
				"service": act.Service,
			}).Error("turn degraded to an apology")
			out = rendered{
				text:  e.gen.Text(lang, apologyFor(kind), nil),
				rtype: TypeError,
				sugg:  e.gen.Suggestions(lang, act.Suggestions),
			}
		}
	}

	if n := len(sc.History); n > 0 {
		sc.History[n-1].Reply = out.text
	}

	// A cancelled turn keeps its incomplete mark and is persisted on a
	// detached context so the rescue write is not itself cancelled.
	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.WithoutCancel(ctx)
	} else {
		sc.Incomplete = false
	}
	if err := e.sessions.Save(saveCtx, sc); err != nil {
		log.WithError(err).Warn("final session save failed")
	}

	debug := out.debug
	if debug == nil {
		debug = map[string]any{}
	}
	debug["correlation_id"] = cid

	return &Response{
		SessionID:    sc.ID,
		Text:         out.text,
		ResponseType: out.rtype,
		Language:     lang,
		Suggestions:  out.sugg,
		DebugInfo:    debug,
	}, nil
}

// loadSession resolves the request's session id, issuing a fresh session
// when the id is absent, unknown or expired. Stale ids are not an error on
// the chat path: the conversation restarts rather than bouncing the user.
func (e *Engine) loadSession(ctx context.Context, id string, log *logrus.Entry) (*session.Context, error) {
	if id != "" {
		sc, err := e.sessions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			return sc, nil
		}
		log.WithField("session_id", id).Info("unknown or expired session id, issuing a new session")
	}
	sc, _, err := e.sessions.Create(ctx, nil, false)
	return sc, err
}

func (e *Engine) perform(ctx context.Context, act dialog.Action, req Request, lang string, prior []session.Turn) (rendered, error) {
	switch act.Kind {
	case dialog.ActionRespond, dialog.ActionPrompt, dialog.ActionEndConversation:
		return rendered{
			text:  e.gen.Text(lang, act.TemplateID, act.Params),
			rtype: TypeText,
			sugg:  e.gen.Suggestions(lang, act.Suggestions),
		}, nil
	case dialog.ActionCallService:
		return e.performService(ctx, act, req, lang, prior)
	default:
		return rendered{}, common.NewFault(common.KindInternal,
			fmt.Sprintf("dialog produced unroutable action %q", act.Kind))
	}
}

func (e *Engine) performService(ctx context.Context, act dialog.Action, req Request, lang string, prior []session.Turn) (rendered, error) {
	switch act.Service {
	case "knowledge":
		return e.performKnowledge(ctx, act, lang)
	case "rag":
		return e.performAnswer(ctx, act, req.Message, lang, prior)
	case "weather":
		return e.performWeather(ctx, act, lang)
	default:
		out, err := e.services.Execute(ctx, act.Service, act.Method, anyParams(act.Params))
		if err != nil {
			return rendered{}, err
		}
		text, _ := out["text"].(string)
		if text == "" {
			return rendered{}, common.NewFault(common.KindInternal,
				fmt.Sprintf("service %q returned no renderable text", act.Service))
		}
		return rendered{
			text:  text,
			rtype: TypeText,
			sugg:  e.gen.Suggestions(lang, act.Suggestions),
		}, nil
	}
}

func (e *Engine) performKnowledge(ctx context.Context, act dialog.Action, lang string) (rendered, error) {
	kind, err := knowledge.KindFromString(act.Params["kind"])
	if err != nil {
		return rendered{}, common.WrapFault(common.KindInternal, "flow names an unknown entity kind", err)
	}
	switch act.Method {
	case "describe":
		return e.describeEntity(ctx, act, kind, lang)
	case "search":
		return e.searchEntities(ctx, act, kind, lang)
	default:
		return rendered{}, common.NewFault(common.KindInternal,
			fmt.Sprintf("flow names unknown knowledge method %q", act.Method))
	}
}

// describeEntity renders one entity. A resolved id from entity extraction
// is authoritative; otherwise the slot's surface form is looked up by name.
// A stale id falls back to the name lookup rather than failing the turn.
func (e *Engine) describeEntity(ctx context.Context, act dialog.Action, kind knowledge.Kind, lang string) (rendered, error) {
	name := act.Params[string(kind)]
	if id := paramID(act.Params, string(kind)+"_id"); id != 0 {
		ent, err := e.catalog.Entity(ctx, kind, id)
		if err == nil {
			return e.card(ent, act, lang), nil
		}
		if !common.IsKind(err, common.KindNotFound) {
			return rendered{}, err
		}
	}
	if name == "" {
		return rendered{}, common.NewFault(common.KindInternal, "describe action without a subject")
	}
	page, err := e.catalog.Find(ctx, kind, name, nil, 1, lang)
	if err != nil {
		return rendered{}, err
	}
	if len(page.Items) == 0 {
		return e.notFound(act, lang, name), nil
	}
	return e.card(&page.Items[0].Entity, act, lang), nil
}

func (e *Engine) searchEntities(ctx context.Context, act dialog.Action, kind knowledge.Kind, lang string) (rendered, error) {
	dest, err := e.resolveDestination(ctx, act.Params, lang)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return e.notFound(act, lang, act.Params["destination"]), nil
		}
		return rendered{}, err
	}
	destName := dest.LocalizedName(lang, e.cfg.DefaultLanguage)

	filters := map[string]any{"destination_id": dest.ID}
	page, err := e.catalog.Find(ctx, kind, strings.TrimSpace(act.Params["query"]), filters, searchLimit, lang)
	if err != nil {
		return rendered{}, err
	}
	params := map[string]string{"destination": destName}
	if len(page.Items) == 0 {
		return rendered{
			text:  e.gen.Text(lang, "no_results", params),
			rtype: TypeText,
			sugg:  e.gen.Suggestions(lang, act.Suggestions),
		}, nil
	}
	return rendered{
		text:  e.gen.Text(lang, "search_results", params) + "\n" + e.gen.ResultList(lang, page.Items),
		rtype: TypeCard,
		sugg:  e.gen.Suggestions(lang, act.Suggestions),
	}, nil
}

func (e *Engine) performAnswer(ctx context.Context, act dialog.Action, question, lang string, prior []session.Turn) (rendered, error) {
	ans, err := e.answerer.Answer(ctx, question, lang, prior)
	if err != nil {
		return rendered{}, err
	}
	sugg := e.gen.Suggestions(lang, act.Suggestions)
	if ans.NoInformation {
		return rendered{
			text:  e.gen.Text(lang, "no_information", nil),
			rtype: TypeText,
			sugg:  sugg,
		}, nil
	}
	debug := map[string]any{}
	if len(ans.Sources) > 0 {
		debug["sources"] = ans.Sources
	}
	if ans.FromFallback {
		debug["answer_source"] = "fallback"
	}
	return rendered{text: ans.Text, rtype: TypeText, sugg: sugg, debug: debug}, nil
}

func (e *Engine) performWeather(ctx context.Context, act dialog.Action, lang string) (rendered, error) {
	dest, err := e.resolveDestination(ctx, act.Params, lang)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return e.notFound(act, lang, act.Params["destination"]), nil
		}
		return rendered{}, err
	}
	if dest.Location == nil {
		return rendered{
			text:  e.gen.Text(lang, "no_information", nil),
			rtype: TypeText,
			sugg:  e.gen.Suggestions(lang, act.Suggestions),
		}, nil
	}
	out, err := e.services.Execute(ctx, "weather", "current", map[string]any{
		"latitude":  dest.Location.Lat,
		"longitude": dest.Location.Lon,
	})
	if err != nil {
		return rendered{}, err
	}
	cond, _ := out["conditions"].(string)
	text := e.gen.Text(lang, "weather_report", map[string]string{
		"destination": dest.LocalizedName(lang, e.cfg.DefaultLanguage),
		"temperature": formatNumber(out["temperature_c"]),
		"conditions":  e.gen.Condition(lang, cond),
		"wind":        formatNumber(out["wind_kmh"]),
	})
	return rendered{
		text:  text,
		rtype: TypeText,
		sugg:  e.gen.Suggestions(lang, act.Suggestions),
	}, nil
}

// resolveDestination loads the destination an action targets, preferring a
// resolved id over the slot's surface form.
func (e *Engine) resolveDestination(ctx context.Context, params map[string]string, lang string) (*knowledge.Entity, error) {
	if id := paramID(params, "destination_id"); id != 0 {
		ent, err := e.catalog.Entity(ctx, knowledge.KindDestination, id)
		if err == nil {
			return ent, nil
		}
		if !common.IsKind(err, common.KindNotFound) {
			return nil, err
		}
	}
	name := params["destination"]
	if name == "" {
		return nil, common.NewFault(common.KindInternal, "action without a destination")
	}
	page, err := e.catalog.Find(ctx, knowledge.KindDestination, name, nil, 1, lang)
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, common.NewFault(common.KindNotFound, "I don't know that destination yet.")
	}
	return &page.Items[0].Entity, nil
}

func (e *Engine) card(ent *knowledge.Entity, act dialog.Action, lang string) rendered {
	return rendered{
		text:  e.gen.EntityCard(lang, ent),
		rtype: TypeText,
		sugg:  e.gen.Suggestions(lang, act.Suggestions),
	}
}

func (e *Engine) notFound(act dialog.Action, lang, name string) rendered {
	return rendered{
		text:  e.gen.Text(lang, "entity_not_found", map[string]string{"name": name}),
		rtype: TypeText,
		sugg:  e.gen.Suggestions(lang, act.Suggestions),
	}
}

func apologyFor(kind common.Kind) string {
	switch kind {
	case common.KindTimeout:
		return "apology_timeout"
	case common.KindServiceUnavailable:
		return "apology_unavailable"
	default:
		return "apology"
	}
}

func outcomeFor(kind common.Kind) analytics.Outcome {
	if kind == common.KindTimeout {
		return analytics.OutcomeTimeout
	}
	return analytics.OutcomeError
}

// stamp attaches the correlation id to a fault, leaving other errors as-is.
func stamp(err error, cid string) error {
	var f *common.Fault
	if errors.As(err, &f) && f.CorrelationID == "" {
		f.CorrelationID = cid
	}
	return err
}

// entityMap flattens extracted entities to one value per type, first
// occurrence wins, matching how the dialog manager fills slots.
func entityMap(entities []nlu.Entity) map[string]string {
	if len(entities) == 0 {
		return nil
	}
	m := make(map[string]string, len(entities))
	for _, ent := range entities {
		if _, ok := m[ent.Type]; ok {
			continue
		}
		v := ent.Value
		if v == "" {
			v = ent.Surface
		}
		m[ent.Type] = v
	}
	return m
}

func anyParams(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func paramID(params map[string]string, key string) int64 {
	raw, ok := params[key]
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func formatNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case string:
		return n
	default:
		return ""
	}
}
