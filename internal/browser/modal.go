// internal/browser/modal.go
package browser

import (
	"context"
	"time"
)

// Dialog wrappers the console is known to stack on top of the chat: expired
// session notices, consent prompts, announcements, tooltips.
const modalWrappers = `.el-message-box__wrapper, .el-dialog__wrapper, .ant-modal-root, .modal, [role='dialog'], [role='alert'], [class*='tooltip'], [class*='announcement']`

// CloseModal dismisses interstitial modals with an ordered strategy list:
// confirm-button by text, configured CSS candidates, generic close buttons,
// Escape, and finally removing the wrapper nodes outright. Each pass is
// bounded; the winning strategy is logged.
func (s *Session) CloseModal(ctx context.Context) bool {
	for attempt := 0; attempt < 3; attempt++ {
		if strategy := s.tryDismiss(ctx); strategy != "" {
			s.log.Debug("modal dismissed", "strategy", strategy, "attempt", attempt+1)
			return true
		}
		s.Sleep(ctx, 200*time.Millisecond)
	}
	s.log.Debug("no visible modal to dismiss")
	return false
}

func (s *Session) tryDismiss(ctx context.Context) string {
	if !s.hasVisibleModal(ctx) {
		return ""
	}

	if s.clickButtonByText(ctx, confirmButtonPattern) {
		s.waitModalGone(ctx)
		return "button-text"
	}

	if sel := s.opts.Selectors.ModalConfirm; sel != "" {
		js := `(() => {
			for (const sel of ` + jsString(sel) + `.split(',')) {
				const el = document.querySelector(sel.trim());
				if (el && el.offsetParent !== null) { el.click(); return true; }
			}
			return false;
		})()`
		var ok bool
		if err := s.Eval(ctx, js, &ok); err == nil && ok {
			s.waitModalGone(ctx)
			return "css-candidate"
		}
	}

	js := `(() => {
		const el = document.querySelector("button[aria-label='close'], .ant-modal-close, .close, [class*='close'] button");
		if (el && el.offsetParent !== null) { el.click(); return true; }
		return false;
	})()`
	var ok bool
	if err := s.Eval(ctx, js, &ok); err == nil && ok {
		s.waitModalGone(ctx)
		return "generic-close"
	}

	if err := s.PressEnter(ctx); err == nil && !s.hasVisibleModal(ctx) {
		return "keyboard"
	}

	// Last resort: drop the wrappers from the DOM.
	remove := `(() => {
		let n = 0;
		document.querySelectorAll(` + jsString(modalWrappers) + `).forEach(el => { el.remove(); n++; });
		return n;
	})()`
	var removed int
	if err := s.Eval(ctx, remove, &removed); err == nil && removed > 0 {
		return "dom-removal"
	}
	return ""
}

func (s *Session) hasVisibleModal(ctx context.Context) bool {
	js := `Array.from(document.querySelectorAll(` + jsString(modalWrappers) + `))
		.some(el => el.offsetParent !== null)`
	var visible bool
	if err := s.Eval(ctx, js, &visible); err != nil {
		return false
	}
	return visible
}

func (s *Session) waitModalGone(ctx context.Context) {
	for i := 0; i < 10; i++ {
		if !s.hasVisibleModal(ctx) {
			return
		}
		s.Sleep(ctx, 300*time.Millisecond)
	}
}
