package elasticsearch

// DefaultIndexName is the index product documents are written to.
const DefaultIndexName = "products"

// indexMapping is the body sent when creating the products index.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "id":          { "type": "long" },
      "sku":         { "type": "keyword" },
      "name":        { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description": { "type": "text" },
      "price":       { "type": "float" },
      "category":    { "type": "keyword" },
      "status":      { "type": "keyword" },
      "image_url":   { "type": "keyword", "index": false },
      "created_at":  { "type": "date" },
      "updated_at":  { "type": "date" }
    }
  }
}`
