package guard

import "regexp"

var injectionPhrases = compileAll(
	`ignore\s+previous\s+instructions`,
	`ignore\s+above`,
	`disregard\s+previous`,
	`forget\s+previous`,
	`you\s+are\s+now`,
	`new\s+instructions`,
	`system\s+prompt`,
	`<\|im_start\|>`,
	`<\|im_end\|>`,
	`\[system\]`,
	`\[/system\]`,
	`sudo\s+`,
	`rm\s+-rf`,
	`override\s+system`,
	`bypass\s+security`,
	`jailbreak`,
	`roleplay`,
	`act\s+as`,
	`pretend\s+to\s+be`,
	`simulate`,
	`execute\s+code`,
	`run\s+command`,
	`cat\s+/etc/passwd`,
	`ls\s+-la`,
	`python\s+-c`,
	`eval\(`,
	`exec\(`,
	`__import__`,
	`subprocess`,
	`os\.system`,
	`shell\s+command`,
	`command\s+injection`,
	`script\s+tag`,
	`javascript:`,
	`onerror\s*=`,
	`onclick\s*=`,
	`</?script`,
	`on\w+\s*=`,
	`\$\{`,
	"```",
	`import\s+(os|subprocess|sys)\b`,
)

var (
	urlPattern   = regexp.MustCompile(`(?i)https?://`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	systemBlock    = regexp.MustCompile(`(?s)\[SYSTEM\].*?\[/SYSTEM\]`)
	chatMLBlock    = regexp.MustCompile(`(?s)<\|im_start\|>.*?<\|im_end\|>`)
	strayDelimiter = regexp.MustCompile(`\[/?SYSTEM\]|<\|im_(start|end)\|>`)
)

// specialChars are counted towards the injection density limit.
const specialChars = "<>|{}[]();=+*&%$#@!"

// DefaultDomainKeywords is the topic vocabulary used when none is configured.
// Entries are lower case and matched on word boundaries.
var DefaultDomainKeywords = []string{
	"ia", "inteligência artificial", "artificial intelligence", "ai",
	"ml", "machine learning", "aprendizado de máquina",
	"nlp", "processamento de linguagem natural", "natural language processing",
	"rag", "retrieval augmented generation", "retrieval-augmented",
	"embedding", "embeddings", "vector", "vectors", "vetor", "vetores", "similaridade", "similarity",
	"chunk", "chunks", "chunking", "segmentação",
	"llm", "llms", "large language model", "modelo de linguagem",
	"transformer", "transformers", "bert", "gpt", "openai",
	"neural network", "rede neural", "deep learning",
	"dados", "data", "dataset", "corpus",
	"treinamento", "training", "fine-tuning",
	"prompt", "contexto", "context",
	"tokenização", "tokenization", "tokenizar", "tokenize",
	"análise morfológica", "morphological analysis", "morfologia",
	"análise sintática", "syntactic analysis", "sintaxe", "syntax",
	"análise semântica", "semantic analysis", "semântica", "semantics",
	"stemming", "lemmatization", "lematização",
	"parsing", "parse", "parser",
	"word2vec", "glove", "fasttext", "word embedding",
	"bag of words", "bow", "tf-idf", "term frequency",
	"rnn", "lstm", "gru", "recurrent neural network",
	"attention", "self-attention", "attention mechanism",
	"classificação", "classification", "classificar",
	"sentimento", "sentiment", "análise de sentimento",
	"supervised learning", "aprendizado supervisionado",
	"unsupervised learning", "aprendizado não supervisionado",
	"reinforcement learning", "aprendizado por reforço",
	"decision tree", "árvore de decisão", "decision trees",
	"svm", "support vector machine", "support vector machines",
	"k-means", "kmeans", "clustering", "agrupamento",
	"cnn", "convolutional neural network", "rede neural convolucional",
	"narrow ai", "ia fraca", "general ai", "ia forte",
	"bias", "viés", "viés algorítmico", "algorithmic bias",
	"interpretability", "interpretabilidade", "explicabilidade",
	"retrieval", "recuperação", "busca", "search",
	"augmentation", "aumento", "enriquecimento",
	"generation", "geração", "gerar",
	"dense rag", "rag denso", "sparse rag", "rag esparso",
	"hybrid rag", "rag híbrido",
	"re-ranking", "reranking", "reordenar",
	"query expansion", "expansão de query", "expansão de consulta",
	"metadata filtering", "filtro de metadados",
	"recall", "precision", "mrr", "mean reciprocal rank",
	"bleu", "rouge", "faithfulness", "fidelidade",
	"answer relevance", "relevância da resposta",
	"context precision", "precisão do contexto",
	"divisão de texto",
	"overlap", "sobreposição",
	"boundary detection", "detecção de limites",
	"vector search", "busca vetorial", "similarity search",
	"cosine similarity", "similaridade de cosseno",
	"pgvector", "pinecone", "weaviate", "chroma",
	"indexação", "indexing", "indexação incremental",
	"caching", "cache", "armazenamento em cache",
	"batch processing", "processamento em lote",
	"alucinação", "hallucination", "alucinações",
	"citação", "citation", "citações", "citations",
	"fonte", "source", "fontes", "sources",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
