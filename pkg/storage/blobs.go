package storage

import "context"

// Blobs 把包级的对象存储函数适配成摄取管道需要的窄接口。
type Blobs struct {
	bucket string
}

// NewBlobs 创建绑定到指定存储桶的 Blobs。
func NewBlobs(bucket string) *Blobs {
	return &Blobs{bucket: bucket}
}

// Put 按原始文件名存储文档字节。
func (b *Blobs) Put(ctx context.Context, fileName string, raw []byte) error {
	return PutDocument(ctx, b.bucket, fileName, raw)
}
