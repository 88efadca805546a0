package api

import (
	"context"
	"net/url"
	"time"
)

type Bucket struct {
	Name         string     `json:"name"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
}

type Object struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	IsFolder     bool       `json:"is_folder,omitempty"`
}

// FileContent is the preview of one stored object or blob.
type FileContent struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
	Size        int64  `json:"size,omitempty"`
}

type Container struct {
	Name         string     `json:"name"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

type Blob struct {
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	IsFolder     bool       `json:"is_folder,omitempty"`
}

func prefixQuery(prefix string) url.Values {
	if prefix == "" {
		return nil
	}
	return url.Values{"prefix": {prefix}}
}

// ListBuckets calls GET /buckets.
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var resp struct {
		Buckets []Bucket `json:"buckets"`
	}
	if err := c.get(ctx, "/buckets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Buckets, nil
}

// ListObjects calls GET /buckets/{bucket}/objects.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var resp struct {
		Objects []Object `json:"objects"`
	}
	if err := c.get(ctx, "/buckets/"+url.PathEscape(bucket)+"/objects", prefixQuery(prefix), &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

// GetBucketFile calls GET /buckets/{bucket}/file.
func (c *Client) GetBucketFile(ctx context.Context, bucket, key string) (FileContent, error) {
	var resp FileContent
	err := c.get(ctx, "/buckets/"+url.PathEscape(bucket)+"/file", url.Values{"key": {key}}, &resp)
	return resp, err
}

// ListContainers calls GET /containers.
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	var resp struct {
		Containers []Container `json:"containers"`
	}
	if err := c.get(ctx, "/containers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Containers, nil
}

// ListBlobs calls GET /containers/{container}/blobs.
func (c *Client) ListBlobs(ctx context.Context, container, prefix string) ([]Blob, error) {
	var resp struct {
		Blobs []Blob `json:"blobs"`
	}
	if err := c.get(ctx, "/containers/"+url.PathEscape(container)+"/blobs", prefixQuery(prefix), &resp); err != nil {
		return nil, err
	}
	return resp.Blobs, nil
}

// GetContainerFile calls GET /containers/{container}/file.
func (c *Client) GetContainerFile(ctx context.Context, container, blob string) (FileContent, error) {
	var resp FileContent
	err := c.get(ctx, "/containers/"+url.PathEscape(container)+"/file", url.Values{"blob_name": {blob}}, &resp)
	return resp, err
}
