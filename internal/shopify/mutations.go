package shopify

// WebhookSubscriptionCreateMutation registers a JSON webhook for one topic
const WebhookSubscriptionCreateMutation = `
mutation WebhookCreate($topic: WebhookSubscriptionTopic!, $callbackUrl: URL!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: { callbackUrl: $callbackUrl, format: JSON }) {
    webhookSubscription {
      id
      topic
    }
    userErrors {
      field
      message
    }
  }
}
`

// ShopQuery is a cheap query used to check credentials
const ShopQuery = `
query {
  shop {
    name
    myshopifyDomain
  }
}
`

// WebhookTopics maps GraphQL webhook topics to the routes that receive them
var WebhookTopics = map[string]string{
	"PRODUCTS_CREATE":         "/api/webhooks/products/create",
	"PRODUCTS_UPDATE":         "/api/webhooks/products/update",
	"PRODUCTS_DELETE":         "/api/webhooks/products/delete",
	"INVENTORY_LEVELS_UPDATE": "/api/webhooks/inventory/update",
	"APP_UNINSTALLED":         "/api/webhooks/app/uninstalled",
}
