// internal/browser/selectors.go
package browser

import (
	"encoding/json"
	"os"
)

// Selectors is the catalog of console selectors. The console UI changes
// often, so every selector can be overridden from a JSON file; the defaults
// track the current layout.
type Selectors struct {
	ChatListRoot      string `json:"chat_list_root"`
	ChatListItem      string `json:"chat_list_item"`
	MessagesContainer string `json:"messages_container"`
	MessageItems      string `json:"message_items"`
	InputTextarea     string `json:"input_textarea"`
	SendButton        string `json:"send_button"`
	StatusBadge       string `json:"status_badge"`
	BuyerName         string `json:"buyer_name"`
	OrderHeaderID     string `json:"order_header_id"`
	ProductURL        string `json:"product_url"`
	AccountName       string `json:"account_name"`
	ModalConfirm      string `json:"modal_confirm_button"`
	FilterAll         string `json:"filter_all_conversations"`
	FilterNeedsReply  string `json:"filter_needs_reply"`
	VerifyCodeInput   string `json:"verify_code_input"`
	VerifySubmit      string `json:"verify_submit"`
	TagButton         string `json:"tag_button"`
	TagModal          string `json:"tag_modal"`
	TagItem           string `json:"tag_item"`
}

// DefaultSelectors returns the selector catalog for the current console layout.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatListRoot:      "div.session_list, ul.session_list, div.chat_list",
		ChatListItem:      "div.session_list > ul > li, ul.session_list > li, div.chat_list li, li.session_item, li[role='listitem']",
		MessagesContainer: "ul.message_main, ul.message_main.watermark_shopee",
		MessageItems:      "ul.message_main li[class*='lt'], ul.message_main li[class*='rt']",
		InputTextarea:     "textarea.el-textarea__inner, div.chat_input textarea, textarea[placeholder*='message' i]",
		SendButton:        "",
		StatusBadge:       "div.order_item_status .el-tag",
		BuyerName:         "div.chat_header .account_name",
		OrderHeaderID:     "div.order_header",
		ProductURL:        "div.order_item_products_item_info_title_name_url .product_url",
		AccountName:       "div.chat_header .account_name",
		ModalConfirm:      ".el-message-box__btns button, .el-dialog__footer .el-button--primary, button.el-button--primary",
		FilterAll:         "",
		FilterNeedsReply:  "",
		VerifyCodeInput:   "input[name*='code' i], input[placeholder*='code' i], input[placeholder*='verification' i], input[type='tel']",
		VerifySubmit:      "",
		TagButton:         ".cont_header .contact_action_icon, .contact_action .contact_action_icon",
		TagModal:          ".el-dialog.select_label_dialog, .el-dialog__wrapper",
		TagItem:           "span.label_item_name",
	}
}

// LoadSelectors reads selector overrides from a JSON file, falling back to
// the defaults for any key the file omits. A missing file is not an error.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sel, nil
		}
		return sel, err
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		return DefaultSelectors(), err
	}
	return sel, nil
}
