package apiclient

import "errors"

// messages maps codes to the user-facing text shown in banners and toasts.
var messages = map[Code]string{
	CodeConfiguration:   "設定が不足しています。管理者に連絡するか、.envファイルの設定を確認してください。",
	CodeExternalService: "外部サービスとの連携でエラーが発生しました。しばらくしてから再度お試しください。",
	CodeRateLimit:       "リクエストが多すぎます。しばらく待ってから再度お試しください。",
	CodeValidation:      "入力内容に誤りがあります。内容を確認してください。",
	CodeNotFound:        "指定されたデータが見つかりません。",
	CodeAIGeneration:    "AIによる生成処理でエラーが発生しました。再度お試しください。",
	CodeInternal:        "サーバー内部でエラーが発生しました。",
	CodeTimeout:         "リクエストがタイムアウトしました。通信環境を確認してください。",
	CodeNetwork:         "サーバーに接続できません。ネットワーク接続を確認してください。",
}

// UnknownMessage is shown for errors that are not *Error values.
const UnknownMessage = "予期しないエラーが発生しました。"

// Message returns the localized text for err. Codes missing from the table
// fall back to the error's own message; non-*Error values get UnknownMessage.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return UnknownMessage
	}
	if msg, ok := messages[apiErr.Code]; ok {
		return msg
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return UnknownMessage
}
