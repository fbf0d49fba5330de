package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"inkline/api/internal/analyze"
	"inkline/api/internal/config"
	"inkline/api/internal/gitrepo"
	"inkline/api/internal/prosemirror"
	"inkline/api/internal/store"
	"inkline/api/internal/suggest"
	"inkline/api/internal/util"
)

type DocumentInput struct {
	Title string          `json:"title"`
	Doc   json.RawMessage `json:"doc"`
}

type SettingsInput struct {
	Mode    *string         `json:"mode"`
	Toggles map[string]bool `json:"toggles"`
}

// EditInput is an edit reported by the editor. Structured edits carry
// ProseMirror positions; Doc, when present, is the document after the edit.
type EditInput struct {
	From         int             `json:"from"`
	To           int             `json:"to"`
	RemovedText  string          `json:"removedText"`
	InsertedText string          `json:"insertedText"`
	Structured   bool            `json:"structured"`
	Doc          json.RawMessage `json:"doc,omitempty"`
}

type dataStore interface {
	ListDocuments(context.Context) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	UpdateDocumentContent(context.Context, store.Document) error
	GetSettings(context.Context, string) (store.DocumentSettings, bool, error)
	SaveSettings(context.Context, store.DocumentSettings) error
	InsertDecisions(context.Context, []store.Decision) error
	ListDecisions(context.Context, string, string, int) ([]store.Decision, error)
	DecisionCounts(context.Context, string) ([]store.DecisionCount, error)
	Ping(ctx context.Context) error
}

type gitService interface {
	EnsureDocumentRepo(string, gitrepo.Content, string) error
	CommitContent(string, gitrepo.Content, string, string) (gitrepo.Version, bool, error)
	GetHeadContent(string) (gitrepo.Content, gitrepo.Version, error)
	GetContentByHash(string, string) (gitrepo.Content, gitrepo.Version, error)
	History(string, int) ([]gitrepo.Version, error)
	CreateTag(string, string, string) error
}

type SessionStore interface {
	SaveEngine(context.Context, string, suggest.State) error
	LoadEngine(context.Context, string) (suggest.State, bool, error)
	DeleteEngine(context.Context, string) error
	Ping(context.Context) error
}

type Analyzer interface {
	Run(ctx context.Context, target analyze.Target, text string, revision uint64) (analyze.Result, error)
}

// documentState is the live editing state of one document. mu serializes
// content changes; the engine has its own lock.
type documentState struct {
	mu     sync.Mutex
	engine *suggest.Engine
	text   string
	posMap *prosemirror.PositionMap
}

type Service struct {
	cfg      config.Config
	store    dataStore
	git      gitService
	sessions SessionStore
	analyzer Analyzer
	logger   *log.Logger
	mapOpts  prosemirror.Options

	mu   sync.Mutex
	docs map[string]*documentState
}

// New wires the service. sessions and analyzer may be nil: without sessions
// engines live only in memory, without an analyzer /analyze is unavailable.
func New(cfg config.Config, dataStore dataStore, gitService gitService, sessions SessionStore, analyzer Analyzer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	mapOpts := prosemirror.DefaultOptions()
	if cfg.Engine.BlockSeparator != "" {
		mapOpts.BlockSeparator = cfg.Engine.BlockSeparator
	}
	if cfg.Engine.HardBreak != "" {
		mapOpts.HardBreak = cfg.Engine.HardBreak
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		git:      gitService,
		sessions: sessions,
		analyzer: analyzer,
		logger:   logger,
		mapOpts:  mapOpts,
		docs:     make(map[string]*documentState),
	}
}

// Bootstrap seeds a welcome document into an empty database.
func (s *Service) Bootstrap(ctx context.Context) error {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(documents) > 0 {
		return nil
	}
	doc, _ := json.Marshal(prosemirror.Paragraphs(
		"Welcome to Inkline.",
		"Run an analysis to see grammar, style and tone suggestions for this text.",
	))
	_, err = s.CreateDocument(ctx, DocumentInput{Title: "Welcome", Doc: doc}, "Inkline")
	return err
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store. ok is false when none is configured.
func (s *Service) PingSessions(ctx context.Context) (ok bool, err error) {
	if s.sessions == nil {
		return false, nil
	}
	return true, s.sessions.Ping(ctx)
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, map[string]any{
			"id":        doc.ID,
			"title":     doc.Title,
			"updatedBy": doc.UpdatedBy,
			"updatedAt": doc.UpdatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) CreateDocument(ctx context.Context, input DocumentInput, userName string) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled Document"
	}
	doc, posMap, err := s.parseDoc(input.Doc)
	if err != nil {
		return nil, err
	}
	documentID := "doc-" + util.NewID("")[:10]
	if err := s.store.InsertDocument(ctx, store.Document{
		ID:        documentID,
		Title:     title,
		Content:   doc,
		PlainText: posMap.Text(),
		UpdatedBy: userName,
	}); err != nil {
		return nil, err
	}
	initial := gitrepo.Content{Title: title, Text: posMap.Text(), Doc: doc}
	if err := s.git.EnsureDocumentRepo(documentID, initial, userName); err != nil {
		return nil, err
	}
	return s.LoadDocument(ctx, documentID)
}

// LoadDocument returns the stored document and starts a fresh suggestion
// batch for it.
func (s *Service) LoadDocument(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}

	_, posMap, err := s.parseDoc(doc.Content)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.text = posMap.Text()
	st.posMap = posMap
	revision := st.engine.Load()
	st.mu.Unlock()
	s.persist(ctx, documentID, st)

	return map[string]any{
		"document": map[string]any{
			"id":        doc.ID,
			"title":     doc.Title,
			"doc":       doc.Content,
			"text":      posMap.Text(),
			"updatedBy": doc.UpdatedBy,
			"updatedAt": doc.UpdatedAt.Format(time.RFC3339),
		},
		"revision": revision,
		"settings": settingsPayload(st.engine),
	}, nil
}

// SaveDocument stores new content. The flat text is diffed against the
// previous snapshot and the engine recalculates offsets for every edit.
func (s *Service) SaveDocument(ctx context.Context, documentID string, input DocumentInput, userName string) (map[string]any, error) {
	if len(input.Doc) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "doc is required", nil)
	}
	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc, posMap, err := s.parseDoc(input.Doc)
	if err != nil {
		return nil, err
	}
	title := firstNonBlank(input.Title, current.Title)

	st.mu.Lock()
	defer st.mu.Unlock()

	result, err := st.engine.Resync(st.text, posMap.Text())
	if err != nil {
		return nil, err
	}
	st.text = posMap.Text()
	st.posMap = posMap

	if err := s.store.UpdateDocumentContent(ctx, store.Document{
		ID:        documentID,
		Title:     title,
		Content:   doc,
		PlainText: posMap.Text(),
		UpdatedBy: userName,
	}); err != nil {
		return nil, err
	}
	version, committed, err := s.git.CommitContent(documentID, gitrepo.Content{Title: title, Text: posMap.Text(), Doc: doc}, userName, "Update content")
	if err != nil {
		return nil, err
	}
	s.persist(ctx, documentID, st)

	return map[string]any{
		"revision":  result.Revision,
		"edits":     result,
		"committed": committed,
		"version":   version,
	}, nil
}

// Analyze fetches a suggestion batch for the current text. The text and the
// engine revision are captured together; if an edit lands while the source
// is working the batch is discarded as stale.
func (s *Service) Analyze(ctx context.Context, documentID string) (map[string]any, error) {
	if s.analyzer == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE", "Suggestion source not configured", nil)
	}
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	text, revision := st.text, st.engine.Revision()
	st.mu.Unlock()

	result, err := s.analyzer.Run(ctx, st.engine, text, revision)
	if err != nil {
		return nil, err
	}
	for _, dropped := range result.Ingestion.Dropped {
		s.logger.Debug("suggestion dropped at ingestion", "document", documentID, "err", dropped)
	}
	s.persist(ctx, documentID, st)

	return map[string]any{
		"result":      result,
		"suggestions": st.engine.Suggestions(),
	}, nil
}

func (s *Service) Suggestions(ctx context.Context, documentID string, all bool) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := st.engine.Suggestions()
	if all {
		items = st.engine.AllSuggestions()
	}
	return map[string]any{
		"revision":    st.engine.Revision(),
		"suggestions": items,
	}, nil
}

// SetStatus applies a status change and appends every resulting transition
// to the decision log.
func (s *Service) SetStatus(ctx context.Context, documentID, suggestionID, rawStatus, userName string) (map[string]any, error) {
	status, err := suggest.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.engine.Get(suggestionID); !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Suggestion not found", map[string]any{"suggestionId": suggestionID})
	}

	transitions, err := st.engine.SetStatus(suggestionID, status)
	if err != nil {
		return nil, err
	}
	if transitions == nil {
		transitions = []suggest.Transition{}
	}

	revision := st.engine.Revision()
	decisions := make([]store.Decision, 0, len(transitions))
	for _, transition := range transitions {
		if transition.To != suggest.StatusAccepted && transition.To != suggest.StatusIgnored {
			continue
		}
		item, _ := st.engine.Get(transition.ID)
		decisions = append(decisions, store.Decision{
			DocumentID:   documentID,
			SuggestionID: transition.ID,
			Category:     string(item.Category),
			Status:       string(transition.To),
			CauseID:      transition.Cause,
			Text:         item.Text,
			Revision:     revision,
			DecidedBy:    userName,
		})
	}
	if err := s.store.InsertDecisions(ctx, decisions); err != nil {
		s.logger.Error("decision log append failed", "document", documentID, "suggestion", suggestionID, "err", err)
	}
	s.persist(ctx, documentID, st)

	return map[string]any{
		"transitions": transitions,
		"suggestions": st.engine.Suggestions(),
	}, nil
}

func (s *Service) Conflicts(ctx context.Context, documentID, suggestionID string) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.engine.Get(suggestionID); !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Suggestion not found", map[string]any{"suggestionId": suggestionID})
	}
	return map[string]any{
		"suggestionId": suggestionID,
		"conflicts":    st.engine.Conflicts(suggestionID),
	}, nil
}

// UpdateSettings changes the mode and merges toggles into the current ones.
func (s *Service) UpdateSettings(ctx context.Context, documentID string, input SettingsInput) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}

	mode := st.engine.Mode()
	if input.Mode != nil {
		parsed, err := suggest.ParseMode(*input.Mode)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		mode = parsed
	}
	toggles := st.engine.Toggles()
	for name, enabled := range input.Toggles {
		category := suggest.Category(name)
		if !category.Known() {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown category", map[string]any{"category": name})
		}
		toggles[category] = enabled
	}

	if err := s.store.SaveSettings(ctx, store.DocumentSettings{
		DocumentID: documentID,
		Mode:       string(mode),
		Toggles:    togglesToStore(toggles),
	}); err != nil {
		return nil, err
	}
	st.engine.SetMode(mode)
	st.engine.SetToggles(toggles)
	s.persist(ctx, documentID, st)

	return map[string]any{
		"settings":    settingsPayload(st.engine),
		"suggestions": st.engine.Suggestions(),
	}, nil
}

// ApplyEdit recalculates suggestion offsets for one editor change.
func (s *Service) ApplyEdit(ctx context.Context, documentID string, input EditInput) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	from, to := input.From, input.To
	if input.Structured {
		from = st.posMap.ToFlat(input.From)
		to = st.posMap.ToFlat(input.To)
	}
	runes := []rune(st.text)
	if from < 0 || to < from || to > len(runes) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_RANGE", "edit range outside document", map[string]any{"from": from, "to": to, "length": len(runes)})
	}

	result, err := st.engine.ApplyEdit(suggest.Edit{From: from, To: to, Removed: input.RemovedText, Inserted: input.InsertedText})
	if err != nil {
		return nil, err
	}

	text := string(runes[:from]) + input.InsertedText + string(runes[to:])
	if len(input.Doc) > 0 {
		_, posMap, err := s.parseDoc(input.Doc)
		if err != nil {
			return nil, err
		}
		if posMap.Text() != text {
			s.logger.Warn("edited document does not match reported edit", "document", documentID,
				"expected", utf8.RuneCountInString(text), "got", posMap.Len())
		}
		st.text = posMap.Text()
		st.posMap = posMap
	} else {
		st.text = text
		st.posMap = prosemirror.BuildMap(prosemirror.Paragraphs(strings.Split(text, s.mapOpts.BlockSeparator)...), s.mapOpts)
	}
	s.persist(ctx, documentID, st)

	return map[string]any{
		"from":   from,
		"to":     to,
		"result": result,
	}, nil
}

func (s *Service) Decorations(ctx context.Context, documentID string) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	posMap := st.posMap
	st.mu.Unlock()
	return map[string]any{
		"revision":    st.engine.Revision(),
		"decorations": st.engine.Decorations(posMap),
	}, nil
}

func (s *Service) Analytics(ctx context.Context, documentID string) (map[string]any, error) {
	st, err := s.documentState(ctx, documentID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.DecisionCounts(ctx, documentID)
	if err != nil {
		return nil, err
	}
	decisions := make([]map[string]any, 0, len(counts))
	for _, item := range counts {
		decisions = append(decisions, map[string]any{
			"type":   item.Category,
			"status": item.Status,
			"count":  item.Count,
		})
	}
	return map[string]any{
		"engine":    st.engine.Analytics(),
		"decisions": decisions,
	}, nil
}

func (s *Service) DecisionLog(ctx context.Context, documentID, status string, limit int) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListDecisions(ctx, documentID, status, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":           entry.ID,
			"suggestionId": entry.SuggestionID,
			"type":         entry.Category,
			"status":       entry.Status,
			"causeId":      nilIfEmpty(entry.CauseID),
			"text":         entry.Text,
			"revision":     entry.Revision,
			"decidedBy":    entry.DecidedBy,
			"decidedAt":    entry.DecidedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"documentId": documentID,
		"items":      items,
	}, nil
}

func (s *Service) History(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	versions, err := s.git.History(documentID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, item := range versions {
		items = append(items, map[string]any{
			"hash":    item.Hash,
			"message": item.Message,
			"meta":    fmt.Sprintf("%s · %s · +%d -%d lines", item.Author, relative(item.CreatedAt), item.Added, item.Removed),
		})
	}
	return map[string]any{
		"documentId": documentID,
		"commits":    items,
	}, nil
}

func (s *Service) Version(ctx context.Context, documentID, hash string) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	var (
		content gitrepo.Content
		version gitrepo.Version
		err     error
	)
	if strings.EqualFold(hash, "head") {
		content, version, err = s.git.GetHeadContent(documentID)
	} else {
		content, version, err = s.git.GetContentByHash(documentID, hash)
	}
	if err != nil {
		return nil, wrapDomainError(err, http.StatusNotFound, "NOT_FOUND", "Version not found", map[string]any{"hash": hash})
	}
	return map[string]any{
		"version": version,
		"content": content,
	}, nil
}

func (s *Service) TagVersion(ctx context.Context, documentID, hash, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if err := s.git.CreateTag(documentID, hash, name); err != nil {
		return nil, err
	}
	return map[string]any{"hash": hash, "name": name}, nil
}

// DiscardSession drops the live engine of a document and its persisted
// snapshot. The next request rebuilds an empty engine from the stored
// settings.
func (s *Service) DiscardSession(ctx context.Context, documentID string) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.docs, documentID)
	s.mu.Unlock()
	if s.sessions != nil {
		if err := s.sessions.DeleteEngine(ctx, documentID); err != nil {
			return nil, err
		}
	}
	return map[string]any{"documentId": documentID, "discarded": true}, nil
}

// documentState returns the live state of a document, building it on first
// use from the stored document, its settings and any persisted engine.
func (s *Service) documentState(ctx context.Context, documentID string) (*documentState, error) {
	s.mu.Lock()
	st, ok := s.docs[documentID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	_, posMap, err := s.parseDoc(doc.Content)
	if err != nil {
		return nil, err
	}
	opts, err := s.engineOptions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	engine := suggest.New(opts)
	if s.sessions != nil {
		state, found, err := s.sessions.LoadEngine(ctx, documentID)
		if err != nil {
			s.logger.Warn("engine session load failed", "document", documentID, "err", err)
		} else if found {
			if err := engine.Restore(state); err != nil {
				s.logger.Warn("engine session restore failed", "document", documentID, "err", err)
			}
		}
	}
	st = &documentState{engine: engine, text: posMap.Text(), posMap: posMap}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.docs[documentID]; ok {
		return existing, nil
	}
	s.docs[documentID] = st
	return st, nil
}

func (s *Service) engineOptions(ctx context.Context, documentID string) (suggest.Options, error) {
	mode, err := suggest.ParseMode(s.cfg.Engine.Mode)
	if err != nil {
		s.logger.Warn("invalid configured engine mode, using balanced", "mode", s.cfg.Engine.Mode)
		mode = suggest.ModeBalanced
	}
	toggles := suggest.DefaultToggles()
	for name, enabled := range s.cfg.Engine.Toggles {
		toggles[suggest.Category(name)] = enabled
	}

	settings, ok, err := s.store.GetSettings(ctx, documentID)
	if err != nil {
		return suggest.Options{}, err
	}
	if ok {
		if parsed, err := suggest.ParseMode(settings.Mode); err == nil {
			mode = parsed
		}
		for name, enabled := range settings.Toggles {
			toggles[suggest.Category(name)] = enabled
		}
	}
	return suggest.Options{
		Mode:     mode,
		Toggles:  toggles,
		Strategy: suggest.ParseStrategy(s.cfg.Engine.Strategy),
		Logger:   s.logger.WithPrefix("engine").With("document", documentID),
	}, nil
}

func (s *Service) persist(ctx context.Context, documentID string, st *documentState) {
	if s.sessions == nil {
		return
	}
	state, err := st.engine.State()
	if err != nil {
		s.logger.Warn("engine snapshot failed", "document", documentID, "err", err)
		return
	}
	if err := s.sessions.SaveEngine(ctx, documentID, state); err != nil {
		s.logger.Warn("engine session save failed", "document", documentID, "err", err)
	}
}

// parseDoc validates a ProseMirror document and builds its position map. An
// empty document is an empty doc node.
func (s *Service) parseDoc(raw json.RawMessage) (json.RawMessage, *prosemirror.PositionMap, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"doc","content":[]}`)
	}
	doc, err := prosemirror.Parse(raw)
	if err != nil {
		return nil, nil, wrapDomainError(err, http.StatusUnprocessableEntity, "INVALID_DOCUMENT", "Document must be a ProseMirror doc node", nil)
	}
	return raw, prosemirror.BuildMap(doc, s.mapOpts), nil
}

func settingsPayload(engine *suggest.Engine) map[string]any {
	return map[string]any{
		"mode":    engine.Mode(),
		"toggles": togglesToStore(engine.Toggles()),
	}
}

func togglesToStore(toggles suggest.Toggles) map[string]bool {
	out := make(map[string]bool, len(toggles))
	for category, enabled := range toggles {
		out[string(category)] = enabled
	}
	return out
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func relative(value time.Time) string {
	minutes := int(time.Since(value).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	days := hours / 24
	return fmt.Sprintf("%dd ago", days)
}
