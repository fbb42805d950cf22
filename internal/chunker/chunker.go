// Package chunker 负责把提取出的长文本切分成有界的分块。
package chunker

import (
	"fmt"
	"strings"
)

// Chunker 按词数把文本切分成固定大小、互不重叠的窗口。
// 切分是确定性的：分块的身份由其序号决定，同样的输入必须产生同样的分块序列。
type Chunker struct {
	size int
}

// New 创建一个 Chunker。size 是每个分块的词数上限，
// 非正数属于配置错误，在启动期直接失败。
func New(size int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("分块大小必须为正数, 当前值: %d", size)
	}
	return &Chunker{size: size}, nil
}

// Size 返回每个分块的词数上限。
func (c *Chunker) Size() int {
	return c.size
}

// Split 把文本按空白分词后分组成窗口，最后一个分块可以不足 size 个词。
// 空文本（或仅包含空白的文本）返回空序列。
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+c.size-1)/c.size)
	for i := 0; i < len(words); i += c.size {
		end := i + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
