// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// ErrMissingCredentials is the fatal configuration error: automation halts
// and is never retried until the operator reconfigures.
var ErrMissingCredentials = errors.New("console credentials missing: set DUOKE_EMAIL and DUOKE_PASSWORD")

// Options configures a browser session.
type Options struct {
	URL        string
	Email      string
	Password   string
	Headless   bool
	ProfileDir string
	NavTimeout time.Duration
	OpTimeout  time.Duration
	Selectors  Selectors
}

// Session owns one authenticated Chrome session with a persistent profile.
// Exactly one Session is active at a time; it is destroyed and recreated on
// any unrecoverable cycle fault.
type Session struct {
	opts Options
	log  *slog.Logger

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context

	mu    sync.RWMutex
	state types.SessionState
}

// Button-text patterns shared between Go and in-page JS (the JS side adds
// the 'i' flag itself, so the patterns carry no inline flags).
const (
	loginButtonPattern   = `(login|entrar|sign\s*in|iniciar\s*sess[aã]o|提交|登录)`
	confirmButtonPattern = `(confirm|confirmar|ok|continue|verify|submit|login|entrar|fechar|确认|確定|确定)`
)

// NewSession launches Chrome with a persistent user-data profile. The
// returned session starts in the unauthenticated state.
func NewSession(ctx context.Context, opts Options, log *slog.Logger) (*Session, error) {
	if opts.NavTimeout == 0 {
		opts.NavTimeout = 60 * time.Second
	}
	if opts.OpTimeout == 0 {
		opts.OpTimeout = 5 * time.Second
	}
	if opts.ProfileDir == "" {
		opts.ProfileDir = filepath.Join(".", "chrome-user-data")
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(opts.ProfileDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(1366, 768),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser now so teardown is deterministic later.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Session{
		opts:          opts,
		log:           log,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		browserCtx:    browserCtx,
		state:         types.SessionUnauthenticated,
	}, nil
}

// Close tears the browser down. Safe to call on every exit path.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
	s.setState(types.SessionUnauthenticated)
}

// State returns the current authentication state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st types.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Selectors returns the selector catalog in use.
func (s *Session) Selectors() Selectors {
	return s.opts.Selectors
}

// run executes chromedp actions with the per-operation timeout applied.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-opCtx.Done():
		}
	}()
	return chromedp.Run(opCtx, actions...)
}

// ---------- Page implementation ----------

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.opts.NavTimeout, chromedp.Navigate(url))
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, s.opts.OpTimeout, chromedp.Location(&url))
	return url, err
}

func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var out string
	js := `(() => {
		const el = document.querySelector(` + jsString(sel) + `);
		return el ? (el.textContent || '').trim() : '';
	})()`
	err := s.Eval(ctx, js, &out)
	return out, err
}

func (s *Session) Texts(ctx context.Context, sel string) ([]string, error) {
	var out []string
	js := `Array.from(document.querySelectorAll(` + jsString(sel) + `))
		.map(n => (n.textContent || '').trim()).filter(Boolean)`
	err := s.Eval(ctx, js, &out)
	return out, err
}

func (s *Session) Count(ctx context.Context, sel string) (int, error) {
	var n int
	err := s.Eval(ctx, `document.querySelectorAll(`+jsString(sel)+`).length`, &n)
	return n, err
}

func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, s.opts.OpTimeout, chromedp.Click(sel, chromedp.ByQuery))
}

// ClickNth scrolls the nth match into view and clicks it through real mouse
// events so the virtualized list reacts the way it does for a human.
func (s *Session) ClickNth(ctx context.Context, sel string, n int) error {
	scroll := fmt.Sprintf(`(() => {
		const ns = document.querySelectorAll(%s);
		const el = ns[%d];
		if (!el) return false;
		el.querySelectorAll('a[href]').forEach(a => { a.removeAttribute('href'); a.removeAttribute('target'); });
		el.scrollIntoView({block: 'center'});
		return true;
	})()`, jsString(sel), n)
	var ok bool
	if err := s.Eval(ctx, scroll, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element at index %d for %q", n, sel)
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, s.opts.OpTimeout,
		chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if n >= len(nodes) {
		return fmt.Errorf("row %d vanished (have %d)", n, len(nodes))
	}
	return s.run(ctx, s.opts.OpTimeout, chromedp.MouseClickNode(nodes[n]))
}

func (s *Session) Fill(ctx context.Context, sel, value string) error {
	return s.run(ctx, s.opts.OpTimeout,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (s *Session) PressEnter(ctx context.Context) error {
	return s.run(ctx, s.opts.OpTimeout, chromedp.KeyEvent(kb.Enter))
}

func (s *Session) Eval(ctx context.Context, js string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return s.run(ctx, s.opts.OpTimeout, chromedp.Evaluate(js, out))
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.opts.NavTimeout, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------- login / 2FA ----------

// Establish navigates to the console, dismisses any interstitial modal, and
// logs in if needed. When a verification-code input appears after submitting
// credentials, the session transitions to awaiting-2FA and Establish returns
// without error; resolution happens through SubmitTwoFactorCode.
func (s *Session) Establish(ctx context.Context) error {
	if err := s.Navigate(ctx, s.opts.URL); err != nil {
		return fmt.Errorf("navigate console: %w", err)
	}
	s.Sleep(ctx, 800*time.Millisecond)
	s.CloseModal(ctx)

	// Let the SPA settle. Best-effort: a timeout here is not an error.
	s.WaitVisible(ctx, "body", 10*time.Second)
	s.CloseModal(ctx)

	if s.isLoggedIn(ctx) {
		s.setState(types.SessionAuthenticated)
		return nil
	}

	form := s.findLoginForm(ctx)
	if form == nil {
		// Give the UI one more chance to mount before giving up.
		s.Sleep(ctx, time.Second)
		form = s.findLoginForm(ctx)
	}
	if form == nil {
		// Chat may simply not have rendered yet. Soft no-op; the next
		// outer cycle retries.
		s.log.Debug("login form not found; leaving session unauthenticated")
		return nil
	}

	if s.opts.Email == "" || s.opts.Password == "" {
		return ErrMissingCredentials
	}

	if err := s.fillLoginForm(ctx, form); err != nil {
		return fmt.Errorf("fill login form: %w", err)
	}
	s.submitLogin(ctx, form)
	s.Sleep(ctx, 2*time.Second)
	s.CloseModal(ctx)

	if s.hasTwoFactorInput(ctx) {
		s.log.Info("verification code requested; awaiting external 2FA input")
		s.setState(types.SessionAwaitingTwoFactor)
		return nil
	}

	sel := s.opts.Selectors
	s.WaitVisible(ctx, sel.ChatListItem+", "+sel.MessagesContainer, 30*time.Second)
	if s.isLoggedIn(ctx) {
		s.setState(types.SessionAuthenticated)
	}
	return nil
}

// SubmitTwoFactorCode fills and confirms the verification code, then reports
// whether the UI now shows the authenticated state.
func (s *Session) SubmitTwoFactorCode(ctx context.Context, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, errors.New("empty verification code")
	}

	if !s.hasTwoFactorInput(ctx) {
		// Nothing to resolve; trust the UI state.
		ok := s.isLoggedIn(ctx)
		if ok {
			s.setState(types.SessionAuthenticated)
		}
		return ok, nil
	}

	filled := s.fillInAnyFrame(ctx, s.opts.Selectors.VerifyCodeInput, code)
	if !filled {
		return false, errors.New("verification code input not found")
	}

	if s.opts.Selectors.VerifySubmit != "" {
		if err := s.Click(ctx, s.opts.Selectors.VerifySubmit); err == nil {
			s.Sleep(ctx, 800*time.Millisecond)
		}
	} else if !s.clickButtonByText(ctx, confirmButtonPattern) {
		s.PressEnter(ctx)
	}

	s.Sleep(ctx, 2*time.Second)
	s.CloseModal(ctx)

	ok := s.isLoggedIn(ctx)
	if ok {
		s.setState(types.SessionAuthenticated)
	} else {
		s.setState(types.SessionAwaitingTwoFactor)
	}
	return ok, nil
}

// isLoggedIn treats the presence of a visible chat list or message container
// as authenticated UI.
func (s *Session) isLoggedIn(ctx context.Context) bool {
	sel := s.opts.Selectors
	n, err := s.Count(ctx, sel.ChatListItem+", "+sel.MessagesContainer)
	return err == nil && n > 0
}

type loginForm struct {
	FrameIndex int    `json:"frame"` // -1 = top document
	EmailSel   string `json:"email"`
	PassSel    string `json:"pass"`
}

// findLoginForm probes the page, then same-origin iframes, for email- and
// password-typed inputs.
func (s *Session) findLoginForm(ctx context.Context) *loginForm {
	js := `(() => {
		const emails = ["input[type='email']", "input[placeholder*='email' i]"];
		const passes = ["input[type='password']", "input[placeholder*='password' i]"];
		const probe = (doc) => {
			for (const se of emails) {
				if (!doc.querySelector(se)) continue;
				for (const sp of passes) {
					if (doc.querySelector(sp)) return {email: se, pass: sp};
				}
			}
			return null;
		};
		const top = probe(document);
		if (top) return {frame: -1, email: top.email, pass: top.pass};
		const frames = document.querySelectorAll('iframe');
		for (let i = 0; i < frames.length; i++) {
			let doc = null;
			try { doc = frames[i].contentDocument; } catch (e) { continue; }
			if (!doc) continue;
			const hit = probe(doc);
			if (hit) return {frame: i, email: hit.email, pass: hit.pass};
		}
		return null;
	})()`
	var form *loginForm
	if err := s.Eval(ctx, js, &form); err != nil {
		return nil
	}
	return form
}

// fillLoginForm writes credentials through native setters and input events so
// the console's framework sees the values.
func (s *Session) fillLoginForm(ctx context.Context, form *loginForm) error {
	if form.FrameIndex < 0 {
		if err := s.Fill(ctx, form.EmailSel, s.opts.Email); err != nil {
			return err
		}
		return s.Fill(ctx, form.PassSel, s.opts.Password)
	}
	if !s.fillInFrame(ctx, form.FrameIndex, form.EmailSel, s.opts.Email) {
		return fmt.Errorf("email input not fillable in frame %d", form.FrameIndex)
	}
	if !s.fillInFrame(ctx, form.FrameIndex, form.PassSel, s.opts.Password) {
		return fmt.Errorf("password input not fillable in frame %d", form.FrameIndex)
	}
	return nil
}

func (s *Session) submitLogin(ctx context.Context, form *loginForm) {
	if s.clickButtonByText(ctx, loginButtonPattern) {
		return
	}
	// Fallback: first visible button, as the console sometimes renders an
	// unlabeled icon button.
	var clicked bool
	js := `(() => {
		const b = Array.from(document.querySelectorAll('button'))
			.find(b => b.offsetParent !== null);
		if (b) { b.click(); return true; }
		return false;
	})()`
	if err := s.Eval(ctx, js, &clicked); err != nil || !clicked {
		s.PressEnter(ctx)
	}
}

func (s *Session) hasTwoFactorInput(ctx context.Context) bool {
	js := `(() => {
		const sel = ` + jsString(s.opts.Selectors.VerifyCodeInput) + `;
		if (document.querySelector(sel)) return true;
		for (const f of document.querySelectorAll('iframe')) {
			try { if (f.contentDocument && f.contentDocument.querySelector(sel)) return true; } catch (e) {}
		}
		return false;
	})()`
	var found bool
	if err := s.Eval(ctx, js, &found); err != nil {
		return false
	}
	return found
}

// fillInAnyFrame sets an input value in the top document or any same-origin
// iframe, firing input/change events for framework reactivity.
func (s *Session) fillInAnyFrame(ctx context.Context, sel, value string) bool {
	js := `(() => {
		const sel = ` + jsString(sel) + `;
		const value = ` + jsString(value) + `;
		const set = (doc) => {
			const el = doc.querySelector(sel);
			if (!el) return false;
			const proto = Object.getPrototypeOf(el);
			const desc = Object.getOwnPropertyDescriptor(proto, 'value');
			if (desc && desc.set) desc.set.call(el, value); else el.value = value;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		};
		if (set(document)) return true;
		for (const f of document.querySelectorAll('iframe')) {
			try { if (f.contentDocument && set(f.contentDocument)) return true; } catch (e) {}
		}
		return false;
	})()`
	var ok bool
	if err := s.Eval(ctx, js, &ok); err != nil {
		return false
	}
	return ok
}

func (s *Session) fillInFrame(ctx context.Context, frame int, sel, value string) bool {
	js := fmt.Sprintf(`(() => {
		const frames = document.querySelectorAll('iframe');
		let doc = null;
		try { doc = frames[%d] && frames[%d].contentDocument; } catch (e) { return false; }
		if (!doc) return false;
		const el = doc.querySelector(%s);
		if (!el) return false;
		const proto = Object.getPrototypeOf(el);
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) desc.set.call(el, %s); else el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, frame, frame, jsString(sel), jsString(value), jsString(value))
	var ok bool
	if err := s.Eval(ctx, js, &ok); err != nil {
		return false
	}
	return ok
}

// clickButtonByText clicks the first visible button whose text matches the
// pattern, searching the top document and same-origin iframes.
func (s *Session) clickButtonByText(ctx context.Context, pattern string) bool {
	js := `(() => {
		const re = new RegExp(` + jsString(pattern) + `, 'i');
		const tryDoc = (doc) => {
			const btn = Array.from(doc.querySelectorAll('button'))
				.find(b => b.offsetParent !== null && re.test((b.textContent || '').trim()));
			if (btn) { btn.click(); return true; }
			return false;
		};
		if (tryDoc(document)) return true;
		for (const f of document.querySelectorAll('iframe')) {
			try { if (f.contentDocument && tryDoc(f.contentDocument)) return true; } catch (e) {}
		}
		return false;
	})()`
	var ok bool
	if err := s.Eval(ctx, js, &ok); err != nil {
		return false
	}
	return ok
}

// jsString quotes a Go string as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
