package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration
		"Compressing %s (%.1f MB)":                       "%s を圧縮中 (%.1f MB)",
		"Source: %dx%d, %s, audio: %t":                   "ソース: %dx%d, %s, 音声: %t",
		"Attempt %d/%d: %s":                              "試行 %d/%d: %s",
		"Strategy %s failed: %s":                         "戦略 %s が失敗しました: %s",
		"Compressed with %s: %.2f MB -> %.2f MB (%.2fx)": "%s で圧縮しました: %.2f MB -> %.2f MB (%.2f倍)",
		"All compression strategies failed":              "すべての圧縮戦略が失敗しました",
		"Source is unreadable: %s":                       "ソースを読み込めません: %s",
		"Thumbnail extraction failed: %s":                "サムネイルの抽出に失敗しました: %s",

		// Runtime selection
		"Using %s runtime":           "%s ランタイムを使用します",
		"Runtime %s unavailable: %s": "ランタイム %s は利用できません: %s",
		"Falling back to %s runtime": "%s ランタイムにフォールバックします",
		"Using %s decoder":           "%s デコーダーを使用します",

		// Probe / render / encode
		"Supported: %s":                                  "サポート: %s",
		"Not supported: %s":                              "非サポート: %s",
		"No candidate supported, using runtime default":  "対応候補がないため、ランタイムの既定を使用します",
		"Rendering %s at %d fps, skip %d, surface %dx%d": "%s を %d fps (間引き %d) で描画中, サーフェス %dx%d",
		"Rendered %d frames, committed %d":               "%d フレームを描画し、%d フレームを確定しました",
		"Frame budget of %d reached":                     "フレーム上限 %d に達しました",
		"Repeated %d unreadable frames":                  "読み込めない %d フレームを直前のフレームで補いました",
		"Recording %dx%d at %.1f fps as %s":              "%dx%d を %.1f fps で %s として録画中",
		"Runtime refused %s: %s":                         "ランタイムが %s を拒否しました: %s",
		"Concatenating %d chunks, %d bytes":              "%d チャンク (%d バイト) を結合中",

		// Jobs / CLI
		"Output saved to %s":            "出力を %s に保存しました",
		"Thumbnail saved to %s":         "サムネイルを %s に保存しました",
		"Job %s %s":                     "ジョブ %s: %s",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",
		"Failed to write output: %s":    "出力の書き込みに失敗しました: %s",
		"Failed to read %s: %s":         "%s の読み込みに失敗しました: %s",
		"%d of %d files compressed":     "%d / %d ファイルを圧縮しました",
	})
}
