// Package tokenizer provides a uniform tokenization contract over
// heterogeneous back ends.
//
// Every back end is wrapped in an Adapter whose Tokenize method returns the
// same Result shape: tokens with ids, pieces, character offsets and byte
// counts, plus the call latency. Adapters never fail; when a back end
// cannot be loaded or errors out, a deterministic heuristic takes over.
//
// Supported back ends:
//   - BPE tables: tiktoken encodings (cl100k_base, r50k_base, p50k_base, o200k_base)
//   - Pretrained vocabularies: model families (gemma, phi, deepseek, qwen,
//     falcon, llama, gpt) simulated by heuristics, or a tokenizer.json when
//     one is available locally
//   - SentencePiece models: uploaded bytes or a model URL
//
// Example usage:
//
//	adapter, err := tokenizer.New("cl100k_base", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := adapter.Tokenize(ctx, "Hello, world!")
//	for _, tok := range res.Tokens {
//	    fmt.Println(tok.Index, tok.ID, tok.Piece)
//	}
//
//	// Custom SentencePiece model.
//	custom, err := tokenizer.New("custom", &tokenizer.CustomData{
//	    Name:     "my-model",
//	    ModelURL: "https://example.com/tokenizer.model",
//	})
package tokenizer
