// Package main provides localization for the vidshrink CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Shrink videos by re-recording them through a ladder of encoder settings.": "エンコーダー設定のラダーで再録画し、動画を縮小します。",

		// Version command
		"vidshrink version %s": "vidshrink バージョン %s",

		// Probe command
		"Source: %s":                    "ソース: %s",
		"  Decoder: %s":                 "  デコーダー: %s",
		"  Container: %s, codec: %s":    "  コンテナ: %s, コーデック: %s",
		"  Size: %dx%d, %.2f fps":       "  サイズ: %dx%d, %.2f fps",
		"  Duration: %s, audio: %t":     "  長さ: %s, 音声: %t",
		"%s (%.0f%%, %d fps, skip %d):": "%s (%.0f%%, %d fps, 間引き %d):",
		"  no supported format":         "  対応フォーマットなし",

		// Summary
		"Compression Summary": "圧縮サマリー",
		"Generated":           "生成日時",
		"Settings":            "設定",
		"Item":                "項目",
		"Value":               "値",
		"Preset":              "プリセット",
		"Runtime":             "ランタイム",
		"Decoder":             "デコーダー",
		"Minimum Savings":     "最小削減率",
		"Workers":             "並列数",
		"Files":               "ファイル",
		"compressed":          "件を圧縮",
		"Original Size":       "元のサイズ",
		"Status":              "状態",
		"Failed":              "失敗",
		"Error":               "エラー",
		"Output":              "出力",
		"Compressed Size":     "圧縮後のサイズ",
		"Compression Ratio":   "圧縮率",
		"Method":              "方式",
		"Format":              "フォーマット",
		"Dimensions":          "解像度",
		"Audio Preserved":     "音声保持",
		"Smooth Playback":     "滑らかな再生",
		"Processing Time":     "処理時間",
		"Thumbnail":           "サムネイル",
		"Target":              "ターゲット",
		"Outcome":             "結果",
		"Size":                "サイズ",
		"Elapsed":             "経過時間",
		"Yes":                 "はい",
		"No":                  "いいえ",
	})
}
