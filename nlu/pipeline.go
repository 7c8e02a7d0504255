package nlu

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Registry names for the pipeline stages.
const (
	ModelLanguageDetector = "language-detector"
	ModelIntentClassifier = "intent-classifier"
	ModelEntityTagger     = "entity-tagger"
)

// Config selects the languages, models and data the pipeline runs with.
// Zero values fall back to the built-in bilingual defaults.
type Config struct {
	Languages       []string
	DefaultLanguage string
	Embedder        Embedder
	Resolver        Canonicalizer
	Examples        []IntentExample
	Gazetteer       []GazetteerEntry
}

// Pipeline runs detection, classification and extraction for one
// utterance. Stages execute under a bounded worker group and each holds
// at most one model at a time, so concurrent requests cannot pin the
// whole model set at once.
type Pipeline struct {
	registry  *Registry
	workers   *semaphore.Weighted
	supported []string
	defLang   string
	log       *logrus.Logger
}

// NewPipeline registers the stage models on registry and returns the
// pipeline. A nil registry gets a private one; production passes the
// process-wide registry so shutdown can release the models.
func NewPipeline(cfg Config, registry *Registry, log *logrus.Logger) *Pipeline {
	if registry == nil {
		registry = NewRegistry(log)
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"en", "ar"}
	}
	defLang := cfg.DefaultLanguage
	if defLang == "" {
		defLang = languages[0]
	}
	embedder := cfg.Embedder
	if embedder == nil {
		embedder = NewLocalEmbedder(0)
	}
	examples := cfg.Examples
	if len(examples) == 0 {
		examples = DefaultIntentExamples()
	}
	gazetteer := cfg.Gazetteer
	if len(gazetteer) == 0 {
		gazetteer = DefaultGazetteer()
	}

	registry.Register(ModelLanguageDetector, func() (any, error) {
		return NewLanguageDetector(languages), nil
	}, nil)
	registry.Register(ModelIntentClassifier, func() (any, error) {
		return NewIntentClassifier(embedder, examples), nil
	}, nil)
	registry.Register(ModelEntityTagger, func() (any, error) {
		return NewEntityTagger(gazetteer, cfg.Resolver, log), nil
	}, nil)

	return &Pipeline{
		registry:  registry,
		workers:   semaphore.NewWeighted(int64(workerCount())),
		supported: languages,
		defLang:   defLang,
		log:       log,
	}
}

// Analyze processes one utterance. It never returns an error: a failed
// stage logs a warning under the correlation id and degrades to the
// session language, the fallback intent or no entities. An empty
// utterance short-circuits without touching any model.
func (p *Pipeline) Analyze(ctx context.Context, text, sessionLanguage, correlationID string) Result {
	text = strings.TrimSpace(text)
	res := Result{
		Language: p.preferredLanguage(sessionLanguage),
		Intent:   IntentFallback,
	}
	if text == "" {
		return res
	}
	log := p.log.WithField("correlation_id", correlationID)

	err := p.withModel(ctx, ModelLanguageDetector, func(artifact any) error {
		detector, ok := artifact.(*LanguageDetector)
		if !ok {
			return fmt.Errorf("model %s has unexpected type %T", ModelLanguageDetector, artifact)
		}
		lang, conf := detector.Detect(text)
		res.LanguageScore = conf
		if lang != "" && conf >= confidentDetection {
			res.Language = lang
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("language detection failed, using session preference")
	}

	err = p.withModel(ctx, ModelIntentClassifier, func(artifact any) error {
		classifier, ok := artifact.(*IntentClassifier)
		if !ok {
			return fmt.Errorf("model %s has unexpected type %T", ModelIntentClassifier, artifact)
		}
		intent, score, err := classifier.Classify(ctx, text)
		if err != nil {
			return err
		}
		res.Intent, res.IntentScore = intent, score
		return nil
	})
	if err != nil {
		res.Intent, res.IntentScore = IntentFallback, 0
		log.WithError(err).Warn("intent classification failed, using fallback intent")
	}

	err = p.withModel(ctx, ModelEntityTagger, func(artifact any) error {
		tagger, ok := artifact.(*EntityTagger)
		if !ok {
			return fmt.Errorf("model %s has unexpected type %T", ModelEntityTagger, artifact)
		}
		res.Entities = tagger.Tag(ctx, text, res.Language)
		return nil
	})
	if err != nil {
		res.Entities = nil
		log.WithError(err).Warn("entity extraction failed, returning no entities")
	}

	return res
}

// withModel runs one stage: a worker slot and the stage's model are held
// only for the duration of fn, so a request never pins two models.
func (p *Pipeline) withModel(ctx context.Context, name string, fn func(artifact any) error) error {
	if err := p.workers.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire nlu worker: %w", err)
	}
	defer p.workers.Release(1)

	h, ok := p.registry.Handle(name)
	if !ok {
		return fmt.Errorf("model %s is not registered", name)
	}
	artifact, err := h.Acquire()
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(artifact)
}

func (p *Pipeline) preferredLanguage(sessionLanguage string) string {
	if sessionLanguage != "" {
		for _, code := range p.supported {
			if code == sessionLanguage {
				return sessionLanguage
			}
		}
	}
	return p.defLang
}

// workerCount sizes the stage worker group to half the CPUs, never below
// two.
func workerCount() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return n
}
