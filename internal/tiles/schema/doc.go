// Package schema defines the tile data model shared by every layer of tileboard.
//
// # Overview
//
// A Tile is one shortcut on the dashboard grid. Tiles live in an ordered
// collection; the order is significant and persisted by the repository as a
// sort position equal to the tile's index.
//
// # JSON Shape
//
// The display layer consumes and produces tiles in exactly this shape:
//
//	{
//	  "id": "mail",
//	  "label": "Mail",
//	  "url": "https://mail.example.com",
//	  "icon": "mail",
//	  "imageUrl": "/assets/mail-1760000000000.png",
//	  "description": "Company email"
//	}
//
// imageUrl and description are omitted when empty. An empty url marks the
// tile as unlinked (display-only).
//
// # Copies
//
// Clone produces a structural deep copy of a tile list and Equal compares
// two lists by order and field values. Every layer that hands tiles across
// an ownership boundary (controller snapshot, edit session working copy)
// goes through Clone, so Equal(Clone(x), x) always holds and mutating the
// copy never reaches the original.
package schema
