// Package indexer loads pre-chunked documents into the chunk store.
//
// Input is JSON Lines, one document per line:
//
//	{"id": "doc-1", "owner_id": "user-1", "filename": "handbook.pdf",
//	 "document_type": "pdf", "tags": ["hr"],
//	 "chunks": [{"content": "Refunds are issued within 30 days.", "page_number": 4}]}
//
// Chunks are embedded in batches with the document input type, outside any
// transaction. Each batch of documents is then written in a single
// transaction. Chunk boundaries are taken as given; nothing here splits text.
package indexer
