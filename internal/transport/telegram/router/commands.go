package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"memebot/internal/config"
	rtsup "memebot/internal/runtime/supervisor"
	kit "memebot/internal/transport"
	logx "memebot/pkg/logx"
)

// Access is the privilege a command or callback requires. Levels are ordered.
type Access int

const (
	AccessEveryone Access = iota
	AccessPrivileged
	AccessOwner
)

// Authorizer resolves the privilege of a user.
type Authorizer interface {
	IsPrivileged(ctx context.Context, userID int64) bool
	IsOwner(ctx context.Context, userID int64) bool
}

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "video"
	//   "push now"
	Route       string
	Aliases     []string // root-level aliases, e.g. ["s"]
	Triggers    []string // exact non-command texts (reply keyboard labels)
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "<action>_<payload>".
type CallbackRoute struct {
	Action      string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

// Interceptor sees non-command messages before trigger routing. It reports
// whether it consumed the message.
type Interceptor func(ctx context.Context, req *Request) (bool, error)

type Request struct {
	Update       kit.Update
	Message      *kit.Message  // nil for callbacks
	Callback     *kit.Callback // nil for messages
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Path         []string // matched command path tokens (for message updates)
	Command      string   // convenience (route or callback key)
	Args         []string
	Payload      string // callback payload (raw string)

	// Parsed arguments
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter kit.Adapter
	Config  *config.Config
	Logger  logx.Logger

	answered atomic.Bool
}

// Answer acknowledges the callback with a short notice. Only the first answer
// is delivered; the router answers with an empty text when a handler did not.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.Callback == nil || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.Callback.ID, text)
}

// Reply sends plain text to the request chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ConfigSource yields the current config snapshot.
type ConfigSource interface {
	Get() *config.Config
}

type CommandManager struct {
	mu sync.RWMutex

	root     *cmdNode
	alias    map[string]*cmdNode // alias -> leaf node
	triggers map[string]*cmdNode // keyboard label -> leaf node

	cbMu      sync.RWMutex
	callbacks map[string]CallbackRoute // action -> route

	interceptor atomic.Pointer[Interceptor]

	log     logx.Logger
	adapter kit.Adapter
	cfgs    ConfigSource
	auth    Authorizer

	runMu  sync.Mutex
	appSup *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgs ConfigSource, auth Authorizer) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		triggers:  map[string]*cmdNode{},
		callbacks: map[string]CallbackRoute{},
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		cfgs:      cfgs,
		auth:      auth,
		jobs:      make(chan func(), 256),
	}
}

// SetAppSupervisor makes background work (menu updates) run under the app
// supervisor so it is canceled on shutdown.
func (m *CommandManager) SetAppSupervisor(sup *rtsup.Supervisor) {
	m.runMu.Lock()
	m.appSup = sup
	m.runMu.Unlock()
}

// SetInterceptor installs the hook for non-command messages. nil removes it.
func (m *CommandManager) SetInterceptor(fn Interceptor) {
	if fn == nil {
		m.interceptor.Store(nil)
		return
	}
	m.interceptor.Store(&fn)
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// level returns the highest access level userID holds.
func (m *CommandManager) level(ctx context.Context, userID int64) Access {
	if m.auth == nil {
		return AccessEveryone
	}
	if m.auth.IsOwner(ctx, userID) {
		return AccessOwner
	}
	if m.auth.IsPrivileged(ctx, userID) {
		return AccessPrivileged
	}
	return AccessEveryone
}

func (m *CommandManager) allowed(ctx context.Context, need Access, userID int64) bool {
	if need == AccessEveryone {
		return true
	}
	return m.level(ctx, userID) >= need
}

func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	// always inject help
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "список команд",
		Usage:       "/help [cmd] [sub...]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := m.helpText(req.Args, m.level(ctx, req.FromID))
			_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	}
	cmds = append(cmds, helper)

	root := newRoot()
	alias := map[string]*cmdNode{}
	triggers := map[string]*cmdNode{}
	menuCandidates := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		cc := c // copy
		root.add(route, cc)
		menuCandidates = append(menuCandidates, cc)

		leaf := root.find(route)
		// Telegram command names are restricted to [a-z0-9_]{1,32}, so a
		// multi-token route also gets an underscore alias ("push now" ->
		// "push_now"). The canonical single token is never aliased: that would
		// short-circuit subcommand traversal.
		if leaf != nil {
			if menu, ok := telegramCommandNameFromRoute(route); ok {
				if len(route) > 1 || (len(route) == 1 && menu != route[0]) {
					if _, exists := alias[menu]; !exists {
						alias[menu] = leaf
					}
				}
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := alias[sa]; !exists {
					alias[sa] = leaf
				}
			}
		}
		for _, t := range c.Triggers {
			if t = strings.TrimSpace(t); t != "" {
				triggers[t] = leaf
			}
		}
	}

	cb := map[string]CallbackRoute{}
	for _, r := range cbs {
		a := strings.TrimSpace(r.Action)
		if a == "" || strings.Contains(a, "_") || r.Handle == nil {
			continue
		}
		cb[a] = r
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.triggers = triggers
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	// Best-effort Telegram /menu autocomplete update (non-blocking).
	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(root, menuCandidates)
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}

		m.runMu.Lock()
		appSup := m.appSup
		m.runMu.Unlock()
		if appSup != nil {
			appSup.Go0("telegram.menu.update", run)
		} else {
			go run(context.Background())
		}
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			m.log.Debug("command worker started", logx.Int("worker", idx))
			defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		m.enqueuePlain(root, up)
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := []string{}
	if len(parts) > 1 {
		args = parts[1:]
	}

	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	// alias as root-level shortcut
	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		cmd := *leaf.cmd
		pos, flags, bools := parseFlags(args)
		m.enqueueCommand(root, up, cmd, splitRoute(cmd.Route), pos, args, flags, bools)
		return
	}

	cur, ok := rootNode.child(word)
	if !ok {
		_, _ = m.adapter.SendText(root, chatOf(msg), "Неизвестная команда. Попробуйте /help", nil)
		return
	}
	path := []string{word}
	for len(args) > 0 {
		nxt := args[0]
		if strings.HasPrefix(nxt, "-") {
			break
		}
		child, ok := cur.child(nxt)
		if !ok {
			break
		}
		cur = child
		path = append(path, nxt)
		args = args[1:]
	}

	// container node without handler: show help for that path
	if cur.cmd == nil {
		txt := m.helpText(path, m.level(root, msg.FromID))
		_, _ = m.adapter.SendText(root, chatOf(msg), txt, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}

	cmd := *cur.cmd
	pos, flags, bools := parseFlags(args)
	m.enqueueCommand(root, up, cmd, path, pos, args, flags, bools)
}

func chatOf(msg *kit.Message) kit.ChatTarget {
	return kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
}

func (m *CommandManager) newMessageRequest(up kit.Update, command string) *Request {
	msg := up.Message
	rid := newReqID()
	return &Request{
		Update:       up,
		Message:      msg,
		Chat:         chatOf(msg),
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      command,
		ReqID:        rid,
		Adapter:      m.adapter,
		Config:       m.config(),
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", command),
		),
	}
}

func (m *CommandManager) config() *config.Config {
	if m.cfgs == nil {
		return nil
	}
	return m.cfgs.Get()
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, path []string, args []string, raw []string, flags map[string]string, bools map[string]bool) {
	msg := up.Message
	if msg == nil {
		return
	}
	if !m.allowed(root, cmd.Access, msg.FromID) {
		_, _ = m.adapter.SendText(root, chatOf(msg), "Недостаточно прав.", nil)
		return
	}

	req := m.newMessageRequest(up, cmd.Route)
	req.Path = path
	req.Args = args
	req.RawArgs = raw
	req.Flags = flags
	req.BoolFlags = bools

	final := wrap(
		cmd.Handle,
		recoverPanics(m.log),
		logRequest(m.log),
		withDeadline(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "Бот перегружен, попробуйте позже.", nil)
	}
}

// enqueuePlain routes a non-command message: interceptor first, then
// keyboard triggers. Anything else is ignored.
func (m *CommandManager) enqueuePlain(root context.Context, up kit.Update) {
	msg := up.Message
	h := func(ctx context.Context, req *Request) error {
		if p := m.interceptor.Load(); p != nil {
			handled, err := (*p)(ctx, req)
			if handled || err != nil {
				return err
			}
		}
		if msg.Media != nil {
			return nil
		}
		m.mu.RLock()
		leaf := m.triggers[strings.TrimSpace(msg.Text)]
		m.mu.RUnlock()
		if leaf == nil || leaf.cmd == nil {
			return nil
		}
		cmd := *leaf.cmd
		if !m.allowed(ctx, cmd.Access, msg.FromID) {
			return nil
		}
		req.Command = cmd.Route
		req.Path = splitRoute(cmd.Route)
		return withDeadline(cmd.Timeout)(cmd.Handle)(ctx, req)
	}

	req := m.newMessageRequest(up, "message")
	final := wrap(
		h,
		recoverPanics(m.log),
		logRequest(m.log),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		m.log.Warn("message dropped (queue full)", logx.Int64("from_id", msg.FromID))
	}
}

// splitCallbackData splits "like_video_12" into ("like", "video_12").
func splitCallbackData(data string) (action, payload string) {
	data = strings.TrimSpace(data)
	if i := strings.IndexByte(data, '_'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	if up.Callback == nil {
		return
	}
	cb := up.Callback
	action, payload := splitCallbackData(cb.Data)

	m.cbMu.RLock()
	route, ok := m.callbacks[action]
	m.cbMu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}
	if !m.allowed(root, route.Access, cb.FromID) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Недостаточно прав.")
		return
	}

	rid := newReqID()
	command := "cb:" + action
	req := &Request{
		Update:   up,
		Callback: cb,
		Chat:     kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		Command:  command,
		Payload:  payload,
		ReqID:    rid,
		Adapter:  m.adapter,
		Config:   m.config(),
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", command),
		),
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := wrap(
		h,
		recoverPanics(m.log),
		logRequest(m.log),
		withDeadline(route.Timeout),
	)

	if !m.tryEnqueue(func() {
		_ = final(root, req)
		// stop the client "loading" spinner when the handler did not answer
		_ = req.Answer(root, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Бот перегружен, попробуйте позже.")
	}
}
